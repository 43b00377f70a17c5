// Package agent exposes the client's capability surface: ten named
// operations, each a thin orchestration of the transport dispatcher, the
// timeout policy, the chunked execution engine and the checkpoint store,
// plus response shaping.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lamim/remexec/internal/checkpoint"
	"github.com/lamim/remexec/internal/config"
	"github.com/lamim/remexec/internal/engine"
	"github.com/lamim/remexec/internal/transport"
	"github.com/lamim/remexec/internal/util"
	"github.com/lamim/remexec/pkg/models"
)

const (
	// Truncation bounds for checkpointed long-run records.
	maxCheckpointedCode   = 500
	maxCheckpointedStdout = 2000
)

// Service wires the capability surface together. It is safe to construct
// once at startup and drive from a single caller; each capability performs
// at most one outbound call and one checkpoint access per invocation.
type Service struct {
	cfg        *config.Config
	dispatcher *transport.Dispatcher
	store      checkpoint.Store
	engine     *engine.Engine
	logger     *slog.Logger
}

// New builds the service from resolved configuration.
func New(cfg *config.Config, dispatcher *transport.Dispatcher, store checkpoint.Store, logger *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      store,
		engine:     engine.New(dispatcher, store, cfg.Chunk.RequireSuccess, logger),
		logger:     logger,
	}
}

// CheckConnection performs a quick liveness probe against the backend.
func (s *Service) CheckConnection(ctx context.Context) *ConnectionStatus {
	outcome := s.dispatcher.Send(ctx, http.MethodGet, "/health", transport.TierQuick, nil)

	if !outcome.OK() {
		return &ConnectionStatus{
			Status:     "disconnected",
			BackendURL: s.dispatcher.BaseURL(),
			Error:      outcome.ErrorDetail(),
			Suggestion: "Check that the backend is running and the configured URL is correct",
		}
	}

	var health models.HealthStatus
	if err := outcome.Decode(&health); err != nil {
		s.logger.Warn("Unexpected health payload", "error", err)
	}
	return &ConnectionStatus{
		Status:            "connected",
		BackendURL:        s.dispatcher.BaseURL(),
		UptimeMinutes:     health.UptimeMinutes,
		MemoryAvailableGB: health.MemoryAvailableGB,
	}
}

// ProbeEnvironment fetches backend resource figures and derives advisory
// recommendations from them. Pure post-processing; no remote side effect.
func (s *Service) ProbeEnvironment(ctx context.Context) *ProbeResult {
	outcome := s.dispatcher.Send(ctx, http.MethodGet, "/probe", transport.TierQuick, nil)

	if !outcome.OK() {
		return &ProbeResult{Error: outcome.ErrorDetail()}
	}

	var env models.EnvironmentInfo
	if err := outcome.Decode(&env); err != nil {
		return &ProbeResult{Error: fmt.Sprintf("unreadable probe response: %v", err)}
	}

	return &ProbeResult{
		Success:         true,
		EnvironmentInfo: env,
		Recommendations: recommend(env),
	}
}

// recommend derives advisories from the probed resource figures.
func recommend(env models.EnvironmentInfo) []string {
	var recs []string
	if !env.GPU.Available {
		recs = append(recs, "No GPU - use classical ML only, avoid deep learning")
	}
	if env.Compute.RAMAvailableGB > 0 && env.Compute.RAMAvailableGB < 4 {
		recs = append(recs, fmt.Sprintf("Low RAM (%.1fGB) - sample datasets, use smaller batches", env.Compute.RAMAvailableGB))
	}
	// A zero estimate means the backend did not report one; only warn on a
	// real figure.
	if remaining := env.Limits.EstimatedSessionMinutesRemaining; remaining > 0 && remaining < 30 {
		recs = append(recs, "Session ending soon - save checkpoints now!")
	}
	return recs
}

// RunQuick executes code at the normal tier, for operations expected to
// finish inside two minutes.
func (s *Service) RunQuick(ctx context.Context, code string) *ExecResult {
	return s.execute(ctx, code, transport.TierNormal, "")
}

// RunLong executes code at the max tier. When checkpointName is non-empty a
// successful run is recorded in the checkpoint store with truncated copies
// of the code and output.
func (s *Service) RunLong(ctx context.Context, code, checkpointName string) *ExecResult {
	return s.execute(ctx, code, transport.TierMax, checkpointName)
}

func (s *Service) execute(ctx context.Context, code string, tier transport.Tier, checkpointName string) *ExecResult {
	outcome := s.dispatcher.Send(ctx, http.MethodPost, "/execute", tier, map[string]any{
		"code":    code,
		"timeout": tier.Seconds(),
	})

	if !outcome.OK() {
		return &ExecResult{Error: outcome.ErrorDetail()}
	}

	var exec models.ExecuteResult
	if err := outcome.Decode(&exec); err != nil {
		return &ExecResult{Error: fmt.Sprintf("unreadable execute response: %v", err)}
	}

	result := &ExecResult{
		Success:          true,
		Stdout:           exec.Stdout,
		Stderr:           exec.Stderr,
		ExecutionTimeSec: exec.ExecutionTimeSec,
		MemoryAfterGB:    exec.MemoryAfterGB,
	}

	if checkpointName != "" {
		location, err := s.store.Save(checkpointName, models.LongRunRecord{
			Code:          util.Truncate(code, maxCheckpointedCode),
			Stdout:        util.Truncate(exec.Stdout, maxCheckpointedStdout),
			ExecutionTime: exec.ExecutionTimeSec,
			CompletedAt:   time.Now(),
		})
		if err != nil {
			s.logger.Error("Failed to save long-run checkpoint", "operation", checkpointName, "error", err)
		} else {
			result.CheckpointSaved = location
		}
	}

	return result
}

// RunChunked advances the named chunked operation by one batch. Validation
// and storage errors are returned as Go errors for the caller to fail fast
// on; dispatch failures are described inside the result.
func (s *Service) RunChunked(ctx context.Context, spec engine.ChunkSpec) (*engine.ChunkResult, error) {
	return s.engine.RunChunk(ctx, spec)
}

// ListFiles lists the backend directory at path.
func (s *Service) ListFiles(ctx context.Context, path string) *FilesResult {
	endpoint := "/files/list?path=" + url.QueryEscape(path)
	outcome := s.dispatcher.Send(ctx, http.MethodGet, endpoint, transport.TierQuick, nil)

	if !outcome.OK() {
		return &FilesResult{Error: outcome.ErrorDetail()}
	}

	var list models.FileList
	if err := outcome.Decode(&list); err != nil {
		return &FilesResult{Error: fmt.Sprintf("unreadable file list: %v", err)}
	}
	return &FilesResult{Success: true, Path: list.Path, Files: list.Files}
}

// Cleanup frees backend memory; unsaved remote variables are lost.
func (s *Service) Cleanup(ctx context.Context) *CleanupResult {
	outcome := s.dispatcher.Send(ctx, http.MethodPost, "/cleanup", transport.TierQuick, nil)

	if !outcome.OK() {
		return &CleanupResult{Error: outcome.ErrorDetail()}
	}

	var stats models.CleanupStats
	if err := outcome.Decode(&stats); err != nil {
		return &CleanupResult{Error: fmt.Sprintf("unreadable cleanup response: %v", err)}
	}
	return &CleanupResult{
		Success:          true,
		MemoryFreedMB:    stats.MemoryFreedMB,
		VariablesCleared: stats.VariablesCleared,
	}
}

// ListVariables lists the variables currently held in the backend session.
func (s *Service) ListVariables(ctx context.Context) *VariablesResult {
	outcome := s.dispatcher.Send(ctx, http.MethodGet, "/variables", transport.TierQuick, nil)

	if !outcome.OK() {
		return &VariablesResult{Error: outcome.ErrorDetail()}
	}

	var list models.VariableList
	if err := outcome.Decode(&list); err != nil {
		return &VariablesResult{Error: fmt.Sprintf("unreadable variable list: %v", err)}
	}
	return &VariablesResult{Success: true, Count: list.Count, Variables: list.Variables}
}

// GetCheckpoint looks up today's checkpoint for an operation.
func (s *Service) GetCheckpoint(operation string) *CheckpointResult {
	record, err := s.store.Load(operation)
	if err != nil {
		return &CheckpointResult{Message: fmt.Sprintf("checkpoint lookup failed: %v", err)}
	}
	if record == nil {
		return &CheckpointResult{Message: fmt.Sprintf("No checkpoint found for %q", operation)}
	}
	return &CheckpointResult{Exists: true, Record: record}
}
