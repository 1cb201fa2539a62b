package state

import (
	"context"
	"fmt"
	"os"

	"github.com/stratus-io/stratus/internal/ir"
	"gopkg.in/yaml.v3"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock() error

	// Unlock releases the lock on the state.
	Unlock() error
}

// BackendConfig holds configuration for a state backend, read from
// .stratus/backend.yaml in the project directory.
type BackendConfig struct {
	Type   string            `yaml:"type"` // "local", "s3", "sqlite"
	Config map[string]string `yaml:"config"`
}

// LoadBackendConfig reads a backend configuration file. A missing file
// means the local backend.
func LoadBackendConfig(path string) (*BackendConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &BackendConfig{Type: "local"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backend config %s: %w", path, err)
	}

	var cfg BackendConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse backend config %s: %w", path, err)
	}
	if cfg.Type == "" {
		cfg.Type = "local"
	}
	return &cfg, nil
}

// NewBackend creates a state backend from configuration. localPath is the
// state file path used by the local backend.
func NewBackend(cfg *BackendConfig, localPath string) (Backend, error) {
	if cfg == nil {
		cfg = &BackendConfig{Type: "local"}
	}

	switch cfg.Type {
	case "local", "":
		return NewManager(localPath), nil
	case "s3":
		return newS3Backend(cfg.Config)
	case "sqlite":
		return newSQLiteBackend(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
