package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	j, err := Open(context.Background(), "memory:")
	require.NoError(t, err)
	assert.IsType(t, &MemoryJournal{}, j)
	assert.NoError(t, j.Close(context.Background()))
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	for _, raw := range []string{"redis://localhost:6379", "sqlite:///tmp/journal.db", "no-scheme"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Open(context.Background(), raw)
			assert.ErrorIs(t, err, ErrUnsupportedScheme)
		})
	}
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://%zz")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedScheme)
}
