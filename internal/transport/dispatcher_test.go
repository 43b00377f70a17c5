package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/health" {
			t.Errorf("Expected /health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","uptime_minutes":12.5}`))
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	outcome := d.Send(context.Background(), http.MethodGet, "/health", TierQuick, nil)

	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Expected success outcome, got %s (%s)", outcome.Kind, outcome.ErrorDetail())
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := outcome.Decode(&payload); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if payload.Status != "ok" {
		t.Errorf("Expected status ok, got %q", payload.Status)
	}
}

func TestSendPostBody(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"stdout":"hi"}`))
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	outcome := d.Send(context.Background(), http.MethodPost, "/execute", TierNormal, map[string]any{
		"code":    "print('hi')",
		"timeout": 120,
	})

	if !outcome.OK() {
		t.Fatalf("Expected success, got %s", outcome.Kind)
	}
	if !strings.Contains(received, `"code":"print('hi')"`) {
		t.Errorf("Request body missing code field: %s", received)
	}
	if !strings.Contains(received, `"timeout":120`) {
		t.Errorf("Request body missing timeout field: %s", received)
	}
}

func TestSendHTTPErrorTruncatesBody(t *testing.T) {
	longBody := strings.Repeat("x", 2000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(longBody))
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	outcome := d.Send(context.Background(), http.MethodGet, "/health", TierQuick, nil)

	if outcome.Kind != OutcomeHTTPError {
		t.Fatalf("Expected http_error outcome, got %s", outcome.Kind)
	}
	if outcome.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", outcome.Status)
	}
	if len(outcome.Body) != maxErrorBody {
		t.Errorf("Expected body truncated to %d bytes, got %d", maxErrorBody, len(outcome.Body))
	}
}

func TestSendTimeoutCarriesConfiguredDeadline(t *testing.T) {
	// Shrink the quick tier so the test completes promptly. The outcome must
	// still report the configured deadline, not the elapsed time.
	origDuration := tierDurations[TierQuick]
	tierDurations[TierQuick] = 50 * time.Millisecond
	defer func() { tierDurations[TierQuick] = origDuration }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	outcome := d.Send(context.Background(), http.MethodGet, "/health", TierQuick, nil)

	if outcome.Kind != OutcomeTimeout {
		t.Fatalf("Expected timeout outcome, got %s", outcome.Kind)
	}
	if outcome.Deadline != 50*time.Millisecond {
		t.Errorf("Expected configured deadline 50ms, got %v", outcome.Deadline)
	}
}

func TestSendConnectionFailureCarriesTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close() // Nothing listens here anymore.

	d := NewDispatcher(target, 0, testLogger())
	outcome := d.Send(context.Background(), http.MethodGet, "/health", TierQuick, nil)

	if outcome.Kind != OutcomeConnectionFailure {
		t.Fatalf("Expected connection_failed outcome, got %s", outcome.Kind)
	}
	if outcome.Target != target {
		t.Errorf("Expected target %q, got %q", target, outcome.Target)
	}
}

func TestSendMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	outcome := d.Send(context.Background(), http.MethodGet, "/health", TierQuick, nil)

	if outcome.Kind != OutcomeOtherFailure {
		t.Fatalf("Expected error outcome for malformed JSON, got %s", outcome.Kind)
	}
}

func TestStreamSuccess(t *testing.T) {
	content := strings.Repeat("data", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("path"); got != "/content/model.pkl" {
			t.Errorf("Expected path query /content/model.pkl, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	body, outcome := d.Stream(context.Background(), "/files/download?path=%2Fcontent%2Fmodel.pkl", TierLong)

	if !outcome.OK() {
		t.Fatalf("Expected success, got %s", outcome.Kind)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	if string(data) != content {
		t.Errorf("Stream content mismatch: expected %d bytes, got %d", len(content), len(data))
	}
}

func TestStreamNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, 0, testLogger())
	body, outcome := d.Stream(context.Background(), "/files/download?path=missing", TierLong)

	if body != nil {
		t.Error("Expected nil body on failure")
	}
	if outcome.Kind != OutcomeHTTPError || outcome.Status != http.StatusNotFound {
		t.Errorf("Expected 404 http_error, got %s status %d", outcome.Kind, outcome.Status)
	}
}

func TestOutcomeErrorDetail(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{"success", Outcome{Kind: OutcomeSuccess}, ""},
		{"http", Outcome{Kind: OutcomeHTTPError, Status: 503}, "HTTP 503"},
		{"timeout", Outcome{Kind: OutcomeTimeout, Deadline: 330 * time.Second}, "TIMEOUT: operation took longer than 330s"},
		{"connection", Outcome{Kind: OutcomeConnectionFailure, Target: "http://backend:9000"}, "CONNECTION_FAILED: http://backend:9000 unreachable"},
		{"other", Outcome{Kind: OutcomeOtherFailure, Message: "boom"}, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.ErrorDetail(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
