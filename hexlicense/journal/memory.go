package journal

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryJournal keeps entries in process memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryJournal returns an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Append(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, prepare(e))
	return nil
}

func (j *MemoryJournal) Latest(ctx context.Context, fingerprint string) (*Entry, error) {
	list, err := j.List(ctx, fingerprint, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (j *MemoryJournal) List(_ context.Context, fingerprint string, limit int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Entry
	for _, e := range j.entries {
		if e.Fingerprint == fingerprint {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return b.RecordedAt.Compare(a.RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *MemoryJournal) Prune(_ context.Context, olderThan time.Duration) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	before := len(j.entries)
	j.entries = slices.DeleteFunc(j.entries, func(e Entry) bool {
		return e.RecordedAt.Before(cutoff)
	})
	return before - len(j.entries), nil
}

func (j *MemoryJournal) Close(_ context.Context) error {
	return nil
}
