// Package journal records license validation outcomes per machine so
// operators can see which installations run offline or were rejected.
//
// A journal is write-mostly and advisory. The offline cache, not the journal,
// backs offline validation.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Latest when a fingerprint has no entries.
var ErrNotFound = errors.New("journal entry not found")

// Entry is one validation outcome.
type Entry struct {
	ID             uuid.UUID  `json:"id"`
	Fingerprint    string     `json:"fingerprint"`
	LicenseKeyHash string     `json:"license_key_hash"`
	Product        string     `json:"product"`
	Outcome        string     `json:"outcome"`
	Reason         string     `json:"reason"`
	Owner          string     `json:"owner,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	OfflineMode    bool       `json:"offline_mode"`
	RecordedAt     time.Time  `json:"recorded_at"`
}

// Journal stores validation outcomes.
type Journal interface {
	// Append stores e. A zero ID or RecordedAt is filled in.
	Append(ctx context.Context, e Entry) error

	// Latest returns the newest entry for a fingerprint, or ErrNotFound.
	Latest(ctx context.Context, fingerprint string) (*Entry, error)

	// List returns up to limit entries for a fingerprint, newest first.
	// A limit <= 0 returns all entries.
	List(ctx context.Context, fingerprint string, limit int) ([]Entry, error)

	// Prune removes entries recorded before now-olderThan.
	// Returns the number of entries removed.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases any resources held by the journal.
	Close(ctx context.Context) error
}

// HashLicenseKey returns the hex SHA-256 of key. Journals never see the key itself.
func HashLicenseKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func prepare(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	return e
}
