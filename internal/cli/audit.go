package cli

import (
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/stratus-io/stratus/internal/logging"
)

// Paths are relative to the project directory, like the rest of .stratus.

// AuditEntry is a single line in the audit log. Entries are append-only
// JSON lines so external tooling can tail and parse the log.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation"`
	User      string         `json:"user"`
	Workspace string         `json:"workspace"`
	Changes   []AuditChange  `json:"changes,omitempty"`
	Summary   map[string]int `json:"summary,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type AuditChange struct {
	Address string `json:"address"`
	Action  string `json:"action"`
}

func auditLogPath() string {
	return filepath.Join(stratusDir(), "audit.log")
}

// writeAuditLog appends an entry to the audit log. Audit failures are logged
// and swallowed, they must never block the operation they record.
func writeAuditLog(entry AuditEntry) {
	entry.Timestamp = time.Now().UTC()
	entry.User = currentUser()
	entry.Workspace = currentWorkspace()

	data, err := json.Marshal(entry)
	if err != nil {
		logging.Warn("failed to encode audit entry", "error", err)
		return
	}

	if err := os.MkdirAll(stratusDir(), 0o755); err != nil {
		logging.Warn("failed to create audit log directory", "error", err)
		return
	}
	f, err := os.OpenFile(auditLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		logging.Warn("failed to open audit log", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Warn("failed to write audit entry", "error", err)
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
