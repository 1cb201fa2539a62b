package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteBackend(t *testing.T) Backend {
	t.Helper()
	b, err := newSQLiteBackend(map[string]string{
		"path": filepath.Join(t.TempDir(), "state.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.(*sqliteBackend).Close() })
	return b
}

func TestSQLiteBackend_RequiresPath(t *testing.T) {
	_, err := newSQLiteBackend(map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")
}

func TestSQLiteBackend_ReadEmpty(t *testing.T) {
	b := newTestSQLiteBackend(t)

	s, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage)
}

func TestSQLiteBackend_WriteReadSnapshots(t *testing.T) {
	b := newTestSQLiteBackend(t)
	ctx := context.Background()

	s := NewState()
	s.Serial = 1
	s.Outputs = map[string]any{"vip": "10.0.0.5"}
	require.NoError(t, b.Write(ctx, s))

	s.Serial = 2
	s.Outputs["vip"] = "10.0.0.6"
	require.NoError(t, b.Write(ctx, s))

	// Read returns the latest serial
	loaded, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Serial)
	assert.Equal(t, "10.0.0.6", loaded.Outputs["vip"])
}

func TestSQLiteBackend_LockUnlock(t *testing.T) {
	b := newTestSQLiteBackend(t)

	require.NoError(t, b.Lock())

	err := b.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	require.NoError(t, b.Unlock())
	require.NoError(t, b.Lock())
	require.NoError(t, b.Unlock())
}
