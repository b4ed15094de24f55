package journal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournal_AppendFillsDefaults(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()

	before := time.Now().UTC()
	require.NoError(t, j.Append(ctx, Entry{Fingerprint: "fp-1", Outcome: "online_valid"}))

	e, err := j.Latest(ctx, "fp-1")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.RecordedAt.Before(before))
	assert.Equal(t, "online_valid", e.Outcome)
}

func TestMemoryJournal_AppendKeepsGivenID(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	id := uuid.New()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, j.Append(ctx, Entry{ID: id, Fingerprint: "fp-1", RecordedAt: at}))
	e, err := j.Latest(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, at, e.RecordedAt)
}

func TestMemoryJournal_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	base := time.Now().UTC()

	for i, outcome := range []string{"online_valid", "offline_valid", "offline_rejected"} {
		require.NoError(t, j.Append(ctx, Entry{
			Fingerprint: "fp-1",
			Outcome:     outcome,
			RecordedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, j.Append(ctx, Entry{Fingerprint: "fp-2", Outcome: "online_invalid", RecordedAt: base}))

	all, err := j.List(ctx, "fp-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "offline_rejected", all[0].Outcome)
	assert.Equal(t, "offline_valid", all[1].Outcome)
	assert.Equal(t, "online_valid", all[2].Outcome)

	limited, err := j.List(ctx, "fp-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, "offline_rejected", limited[0].Outcome)

	latest, err := j.Latest(ctx, "fp-2")
	require.NoError(t, err)
	assert.Equal(t, "online_invalid", latest.Outcome)
}

func TestMemoryJournal_LatestNotFound(t *testing.T) {
	_, err := NewMemoryJournal().Latest(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryJournal_Prune(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	now := time.Now().UTC()

	require.NoError(t, j.Append(ctx, Entry{Fingerprint: "fp-1", Outcome: "old", RecordedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, j.Append(ctx, Entry{Fingerprint: "fp-1", Outcome: "older", RecordedAt: now.Add(-72 * time.Hour)}))
	require.NoError(t, j.Append(ctx, Entry{Fingerprint: "fp-1", Outcome: "fresh", RecordedAt: now}))

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := j.List(ctx, "fp-1", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].Outcome)
	assert.NoError(t, j.Close(ctx))
}

func TestHashLicenseKey(t *testing.T) {
	h := HashLicenseKey("ABCD-1234-EFGH-5678")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashLicenseKey("ABCD-1234-EFGH-5678"))
	assert.NotEqual(t, h, HashLicenseKey("ABCD-1234-EFGH-5679"))
	assert.NotContains(t, h, "ABCD")
}

func TestNewPostgresJournal_InvalidTableName(t *testing.T) {
	for _, name := range []string{"bad-name", "1starts_with_digit", "drop table; --", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := NewPostgresJournal(context.Background(), nil, WithTableName(name))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid table name")
		})
	}
}

func TestNewMongoJournal_InvalidCollectionName(t *testing.T) {
	for _, name := range []string{"bad;name", "system.users", "$cmd", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := NewMongoJournal(context.Background(), nil, WithCollectionName(name))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid collection name")
		})
	}
}

var (
	_ Journal = (*MemoryJournal)(nil)
	_ Journal = (*PostgresJournal)(nil)
	_ Journal = (*MongoJournal)(nil)
)
