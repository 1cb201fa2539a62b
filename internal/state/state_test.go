package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReadWrite(t *testing.T) {
	tmpDir := t.TempDir()
	statePath := filepath.Join(tmpDir, "state.json")

	mgr := NewManager(statePath)
	ctx := context.Background()

	// 1. Read non-existent state: fresh state with a new lineage
	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.CurrentStateVersion, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage)

	// 2. Write state
	s.Serial = 3
	s.Resources = []*ir.ResourceState{
		{
			Type:       "net.VirtualNetwork",
			Name:       "main",
			Provider:   "sim",
			InputsHash: "hash123",
			Outputs:    map[string]any{"id": "sim-main-0001"},
		},
	}
	require.NoError(t, mgr.Write(ctx, s))

	// 3. Read back
	loaded, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Lineage, loaded.Lineage)
	assert.Equal(t, 3, loaded.Serial)
	require.Len(t, loaded.Resources, 1)
	assert.Equal(t, "net.VirtualNetwork.main", loaded.Resources[0].Addr())
	assert.Equal(t, "sim-main-0001", loaded.Resources[0].Outputs["id"])
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	os.Setenv(EncryptionKeyEnvVar, "roundtrip-test-key!!!!!!!!!!!!!!")
	defer os.Unsetenv(EncryptionKeyEnvVar)

	tmpDir := t.TempDir()
	statePath := filepath.Join(tmpDir, "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	s := NewState()
	s.Resources = []*ir.ResourceState{
		{Type: "net.Subnet", Name: "web", Provider: "sim"},
	}
	require.NoError(t, mgr.Write(ctx, s))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw), "file on disk must be ciphertext")

	loaded, err := mgr.Read(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Resources, 1)
	assert.Equal(t, "net.Subnet.web", loaded.Resources[0].Addr())
}

func TestManager_LockUnlock(t *testing.T) {
	tmpDir := t.TempDir()
	mgr := NewManager(filepath.Join(tmpDir, "state.json"))

	require.NoError(t, mgr.Lock())

	// Second lock fails while the first is held
	err := mgr.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, mgr.Unlock())
	require.NoError(t, mgr.Lock())
	require.NoError(t, mgr.Unlock())
}

func TestUnmarshalState_RejectsNewerVersion(t *testing.T) {
	_, err := UnmarshalState([]byte(`{"version":99,"serial":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this build")
}

func TestUnmarshalState_DefaultsVersion(t *testing.T) {
	s, err := UnmarshalState([]byte(`{"serial":1,"lineage":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, ir.CurrentStateVersion, s.Version)
}

func TestLoadBackendConfig_Missing(t *testing.T) {
	cfg, err := LoadBackendConfig(filepath.Join(t.TempDir(), "backend.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Type)
}

func TestLoadBackendConfig_S3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	content := "type: s3\nconfig:\n  bucket: my-bucket\n  region: eu-west-1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadBackendConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Type)
	assert.Equal(t, "my-bucket", cfg.Config["bucket"])
	assert.Equal(t, "eu-west-1", cfg.Config["region"])
}

func TestNewBackendRejectsUnknownType(t *testing.T) {
	_, err := NewBackend(&BackendConfig{Type: "redis"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
}

func TestNewBackendLocal(t *testing.T) {
	b, err := NewBackend(&BackendConfig{Type: "local"}, filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	_, ok := b.(*Manager)
	assert.True(t, ok)
}
