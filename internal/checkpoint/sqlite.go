package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lamim/remexec/internal/metrics"
	"github.com/lamim/remexec/pkg/models"
)

// SQLiteStore implements Store on a single SQLite database. Each
// (operation, day) key maps to one row; saves are upserts, so last write
// wins just like the file backend.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	logger  *slog.Logger
	writeMu sync.Mutex
	now     func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "init", Err: err}
	}

	store := &SQLiteStore{db: db, path: dbPath, logger: logger, now: time.Now}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, &StorageError{Backend: "sqlite", Op: "init", Err: err}
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		operation TEXT NOT NULL,
		day TEXT NOT NULL,
		id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (operation, day)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save upserts today's record for operation.
func (s *SQLiteStore) Save(operation string, data any) (string, error) {
	key, err := s.save(operation, data)
	metrics.RecordCheckpointWrite("sqlite", err)
	return key, err
}

func (s *SQLiteStore) save(operation string, data any) (string, error) {
	safe, err := sanitizeOperation(operation)
	if err != nil {
		return "", &StorageError{Backend: "sqlite", Op: "save", Err: err}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", &StorageError{Backend: "sqlite", Op: "save", Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	now := s.now()
	day := now.Format(dayFormat)
	id := uuid.New().String()

	// Serialize writes to avoid SQLITE_BUSY from concurrent writers.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO checkpoints (operation, day, id, timestamp, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (operation, day) DO UPDATE SET
			id = excluded.id,
			timestamp = excluded.timestamp,
			data = excluded.data
	`, safe, day, id, now.Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return "", &StorageError{Backend: "sqlite", Op: "save", Err: err}
	}

	s.logger.Debug("Checkpoint saved", "operation", operation, "day", day)
	return fmt.Sprintf("%s#%s/%s", s.path, safe, day), nil
}

// Load reads today's record for operation. Absent records return (nil, nil).
func (s *SQLiteStore) Load(operation string) (*models.CheckpointRecord, error) {
	safe, err := sanitizeOperation(operation)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "load", Err: err}
	}

	day := s.now().Format(dayFormat)

	var (
		id        string
		timestamp string
		data      string
	)
	row := s.db.QueryRow(`SELECT id, timestamp, data FROM checkpoints WHERE operation = ? AND day = ?`, safe, day)
	switch err := row.Scan(&id, &timestamp, &data); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, &StorageError{Backend: "sqlite", Op: "load", Err: err}
	}

	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "load", Err: fmt.Errorf("corrupt timestamp: %w", err)}
	}

	return &models.CheckpointRecord{
		ID:        id,
		Timestamp: ts,
		Operation: operation,
		Data:      json.RawMessage(data),
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
