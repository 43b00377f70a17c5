package checkpoint

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// storeFactories builds each backend over a fresh temp location so the
// contract tests run against both.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"file": func() Store {
			s, err := NewFileStore(t.TempDir(), testLogger())
			if err != nil {
				t.Fatalf("NewFileStore failed: %v", err)
			}
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"), testLogger())
			if err != nil {
				t.Fatalf("NewSQLiteStore failed: %v", err)
			}
			return s
		},
	}
}

type testPayload struct {
	Completed int    `json:"completed"`
	Note      string `json:"note"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			location, err := store.Save("train_model", testPayload{Completed: 40, Note: "epoch 4"})
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			if location == "" {
				t.Error("Expected a non-empty record location")
			}

			record, err := store.Load("train_model")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if record == nil {
				t.Fatal("Expected a record, got nil")
			}
			if record.Operation != "train_model" {
				t.Errorf("Expected operation train_model, got %q", record.Operation)
			}
			if record.ID == "" {
				t.Error("Expected a record ID")
			}

			var payload testPayload
			if err := record.DecodeData(&payload); err != nil {
				t.Fatalf("DecodeData failed: %v", err)
			}
			if payload.Completed != 40 || payload.Note != "epoch 4" {
				t.Errorf("Payload mismatch: %+v", payload)
			}
		})
	}
}

func TestLoadAbsent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			record, err := store.Load("never_saved")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if record != nil {
				t.Errorf("Expected nil record for absent checkpoint, got %+v", record)
			}
		})
	}
}

func TestSaveOverwritesSameKey(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			if _, err := store.Save("op", testPayload{Completed: 10}); err != nil {
				t.Fatalf("First save failed: %v", err)
			}
			if _, err := store.Save("op", testPayload{Completed: 20}); err != nil {
				t.Fatalf("Second save failed: %v", err)
			}

			record, err := store.Load("op")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			var payload testPayload
			if err := record.DecodeData(&payload); err != nil {
				t.Fatalf("DecodeData failed: %v", err)
			}
			if payload.Completed != 20 {
				t.Errorf("Expected last write to win (completed=20), got %d", payload.Completed)
			}
		})
	}
}

func TestOperationIsolation(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			if _, err := store.Save("a", testPayload{Completed: 1}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			record, err := store.Load("b")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if record != nil {
				t.Errorf("Saving 'a' must not affect 'b', got %+v", record)
			}
		})
	}
}

func TestEmptyOperationRejected(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			if _, err := store.Save("", testPayload{}); err == nil {
				t.Error("Expected error for empty operation name")
			}
			if _, err := store.Save("   ", testPayload{}); err == nil {
				t.Error("Expected error for blank operation name")
			}
		})
	}
}

func TestNoCrossDateFallback(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1)

	t.Run("file", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), testLogger())
		if err != nil {
			t.Fatalf("NewFileStore failed: %v", err)
		}
		defer store.Close()

		store.now = func() time.Time { return yesterday }
		if _, err := store.Save("daily", testPayload{Completed: 99}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		store.now = time.Now
		record, err := store.Load("daily")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if record != nil {
			t.Errorf("Expected no record today for yesterday's checkpoint, got %+v", record)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"), testLogger())
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		defer store.Close()

		store.now = func() time.Time { return yesterday }
		if _, err := store.Save("daily", testPayload{Completed: 99}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		store.now = time.Now
		record, err := store.Load("daily")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if record != nil {
			t.Errorf("Expected no record today for yesterday's checkpoint, got %+v", record)
		}
	})
}

func TestSanitizeOperation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"train_model", "train_model"},
		{"eval/run 1", "eval_run_1"},
		{"a;b", "a_b"},
		{"model-v2.1", "model-v2.1"},
	}

	for _, tt := range tests {
		got, err := sanitizeOperation(tt.in)
		if err != nil {
			t.Errorf("sanitizeOperation(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("sanitizeOperation(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFileStoreRecordOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer store.Close()

	location, err := store.Save("disk_check", testPayload{Completed: 7})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if filepath.Dir(location) != dir {
		t.Errorf("Record location %q not under store dir %q", location, dir)
	}
	if _, err := os.Stat(location); err != nil {
		t.Errorf("Record file missing: %v", err)
	}

	wantName := "disk_check_" + time.Now().Format("20060102") + ".json"
	if filepath.Base(location) != wantName {
		t.Errorf("Expected date-partitioned filename %q, got %q", wantName, filepath.Base(location))
	}
}
