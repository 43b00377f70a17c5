package checkpoint

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lamim/remexec/internal/config"
	"github.com/lamim/remexec/pkg/models"
)

// Store is the checkpoint persistence contract: a keyed, date-partitioned
// mapping from an operation name to the most recently saved progress
// snapshot. Last write wins; there is no merging or versioning.
//
// A checkpoint is scoped to the day it was written: Load only ever consults
// today's record, never an older one.
type Store interface {
	// Save writes a record keyed by (operation, today) and returns an
	// identifier for the written record. Any existing record for the same
	// key is fully replaced.
	Save(operation string, data any) (string, error)

	// Load returns today's record for operation, or (nil, nil) when none
	// exists.
	Load(operation string) (*models.CheckpointRecord, error)

	Close() error
}

// StorageError wraps a checkpoint read or write failure. Write failures are
// propagated, never silently swallowed.
type StorageError struct {
	Backend string
	Op      string // "save" or "load"
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("checkpoint %s failed (%s backend): %v", e.Op, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// New builds the store selected by the configuration.
func New(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Checkpoint.Backend {
	case config.CheckpointBackendSQLite:
		return NewSQLiteStore(filepath.Join(cfg.Checkpoint.Dir, "checkpoints.db"), logger)
	default:
		return NewFileStore(cfg.Checkpoint.Dir, logger)
	}
}

const dayFormat = "20060102"

// sanitizeOperation maps an operation name onto a filesystem- and key-safe
// form. Empty names are rejected before any write.
func sanitizeOperation(operation string) (string, error) {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return "", fmt.Errorf("operation name must not be empty")
	}

	var b strings.Builder
	for _, r := range operation {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String(), nil
}

func dayKey(operation string, now time.Time) string {
	return fmt.Sprintf("%s_%s", operation, now.Format(dayFormat))
}
