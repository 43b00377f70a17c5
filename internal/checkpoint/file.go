package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/remexec/internal/metrics"
	"github.com/lamim/remexec/pkg/models"
)

// FileStore persists one JSON file per (operation, day) key. Writes are
// atomic: a temp file is written first, then renamed over the live record,
// so a crash mid-write never leaves a torn checkpoint behind.
type FileStore struct {
	dir     string
	logger  *slog.Logger
	writeMu sync.Mutex
	now     func() time.Time
}

// NewFileStore creates a file-backed store rooted at dir, creating it if
// needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Backend: "file", Op: "init", Err: err}
	}
	return &FileStore{dir: dir, logger: logger, now: time.Now}, nil
}

func (s *FileStore) recordPath(operation string, now time.Time) (string, error) {
	safe, err := sanitizeOperation(operation)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, dayKey(safe, now)+".json"), nil
}

// Save writes today's record for operation, replacing any prior one.
func (s *FileStore) Save(operation string, data any) (string, error) {
	path, err := s.save(operation, data)
	metrics.RecordCheckpointWrite("file", err)
	return path, err
}

func (s *FileStore) save(operation string, data any) (string, error) {
	now := s.now()
	path, err := s.recordPath(operation, now)
	if err != nil {
		return "", &StorageError{Backend: "file", Op: "save", Err: err}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", &StorageError{Backend: "file", Op: "save", Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	record := models.CheckpointRecord{
		ID:        uuid.New().String(),
		Timestamp: now,
		Operation: operation,
		Data:      payload,
	}

	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", &StorageError{Backend: "file", Op: "save", Err: err}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, encoded, 0o644); err != nil {
		return "", &StorageError{Backend: "file", Op: "save", Err: err}
	}
	if err := os.Rename(tempPath, path); err != nil {
		return "", &StorageError{Backend: "file", Op: "save", Err: err}
	}

	s.logger.Debug("Checkpoint saved", "operation", operation, "path", path)
	return path, nil
}

// Load reads today's record for operation. Absent records return (nil, nil).
func (s *FileStore) Load(operation string) (*models.CheckpointRecord, error) {
	path, err := s.recordPath(operation, s.now())
	if err != nil {
		return nil, &StorageError{Backend: "file", Op: "load", Err: err}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Backend: "file", Op: "load", Err: err}
	}

	var record models.CheckpointRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &StorageError{Backend: "file", Op: "load", Err: fmt.Errorf("corrupt record %s: %w", path, err)}
	}

	return &record, nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
