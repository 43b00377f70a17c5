package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/lamim/remexec/internal/checkpoint"
	"github.com/lamim/remexec/internal/metrics"
	"github.com/lamim/remexec/internal/transport"
	"github.com/lamim/remexec/internal/util"
	"github.com/lamim/remexec/pkg/models"
)

const (
	// DefaultCheckpointName is used when a chunked run does not name its
	// checkpoint.
	DefaultCheckpointName = "chunked_op"

	// maxOutputExcerpt bounds the batch output stored in the checkpoint.
	maxOutputExcerpt = 1000
)

// ValidationError reports malformed chunk arguments. It fails fast, before
// any dispatch or checkpoint write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ChunkSpec describes one chunked operation: a total iteration space, a
// batch size bounding each remote dispatch, one-time setup code, and the
// per-iteration code template. The template may reference the current index
// through the {i} placeholder.
type ChunkSpec struct {
	SetupCode       string
	LoopCode        string
	TotalIterations int
	BatchSize       int
	CheckpointName  string
}

// ChunkResult is the uniform progress/continuation contract returned after
// every batch, regardless of which timeout tier or failure mode the batch
// hit.
type ChunkResult struct {
	Completed   int     `json:"completed"`
	Remaining   int     `json:"remaining"`
	ProgressPct float64 `json:"progress_pct"`
	Output      string  `json:"output"`
	Success     bool    `json:"success"`
	CanContinue bool    `json:"can_continue"`
	NextCommand string  `json:"next_command,omitempty"`
}

// Engine is the chunked-execution state machine. It holds no progress state
// of its own: every call re-reads the checkpoint store to find the resume
// point, so the whole process can be restarted between batches.
type Engine struct {
	dispatcher *transport.Dispatcher
	store      checkpoint.Store
	logger     *slog.Logger

	// requireSuccess makes a failed dispatch leave the completion offset
	// where it was, instead of the default optimistic accounting that counts
	// an attempted range as completed. See the package doc for the tradeoff.
	requireSuccess bool
}

// New creates an engine over the given dispatcher and checkpoint store.
func New(dispatcher *transport.Dispatcher, store checkpoint.Store, requireSuccess bool, logger *slog.Logger) *Engine {
	return &Engine{
		dispatcher:     dispatcher,
		store:          store,
		logger:         logger,
		requireSuccess: requireSuccess,
	}
}

// RunChunk executes the next unexecuted batch of the operation described by
// spec and persists the new completion offset. Errors are returned only for
// invalid arguments and checkpoint storage failures; a failed remote
// dispatch still yields a ChunkResult describing the failure.
func (e *Engine) RunChunk(ctx context.Context, spec ChunkSpec) (*ChunkResult, error) {
	if spec.BatchSize <= 0 {
		return nil, &ValidationError{Field: "batch_size", Reason: fmt.Sprintf("must be positive (got %d)", spec.BatchSize)}
	}
	if spec.TotalIterations <= 0 {
		return nil, &ValidationError{Field: "total_iterations", Reason: fmt.Sprintf("must be positive (got %d)", spec.TotalIterations)}
	}
	if spec.CheckpointName == "" {
		spec.CheckpointName = DefaultCheckpointName
	}

	start, err := e.loadOffset(spec.CheckpointName)
	if err != nil {
		return nil, err
	}

	// Resuming past the final batch is idempotent: no dispatch, no write.
	if start >= spec.TotalIterations {
		return &ChunkResult{
			Completed:   spec.TotalIterations,
			Remaining:   0,
			ProgressPct: 100.0,
			Output:      "all iterations already completed",
			Success:     true,
			CanContinue: false,
		}, nil
	}

	end := start + spec.BatchSize
	if end > spec.TotalIterations {
		end = spec.TotalIterations
	}

	code := materializeBatch(spec, start, end)

	e.logger.Info("Dispatching chunk batch",
		"operation", spec.CheckpointName,
		"range_start", start,
		"range_end", end,
		"total", spec.TotalIterations)

	outcome := e.dispatcher.Send(ctx, http.MethodPost, "/execute", transport.TierLong, map[string]any{
		"code":    code,
		"timeout": transport.TierLong.Seconds(),
	})
	metrics.RecordChunkBatch(spec.CheckpointName, end-start, outcome.OK())

	var output string
	if outcome.OK() {
		var exec models.ExecuteResult
		if err := outcome.Decode(&exec); err != nil {
			output = fmt.Sprintf("unreadable execute response: %v", err)
		} else {
			output = exec.Stdout
		}
	} else {
		output = outcome.ErrorDetail()
	}

	// The checkpoint is written whether or not the dispatch succeeded. Under
	// the default policy the offset advances past the attempted range, which
	// marks it attempted rather than succeeded; a transient backend failure
	// therefore skips that range on resume. requireSuccess trades that risk
	// for re-running the failed range.
	completed := end
	if e.requireSuccess && !outcome.OK() {
		completed = start
	}

	if _, err := e.store.Save(spec.CheckpointName, models.ChunkProgress{
		Completed:       completed,
		Total:           spec.TotalIterations,
		LastBatchOutput: util.Truncate(output, maxOutputExcerpt),
		UpdatedAt:       time.Now(),
	}); err != nil {
		return nil, err
	}

	result := &ChunkResult{
		Completed:   completed,
		Remaining:   spec.TotalIterations - completed,
		ProgressPct: progressPct(completed, spec.TotalIterations),
		Output:      output,
		Success:     outcome.OK(),
		CanContinue: completed < spec.TotalIterations,
	}
	if result.CanContinue {
		result.NextCommand = fmt.Sprintf("remexec chunk run --checkpoint %s", spec.CheckpointName)
	}
	return result, nil
}

// loadOffset reads the recorded completion offset for the operation, or 0
// when no checkpoint exists yet.
func (e *Engine) loadOffset(operation string) (int, error) {
	record, err := e.store.Load(operation)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}

	var progress models.ChunkProgress
	if err := record.DecodeData(&progress); err != nil {
		return 0, &checkpoint.StorageError{Backend: "record", Op: "load", Err: fmt.Errorf("corrupt progress payload for %q: %w", operation, err)}
	}
	if progress.Completed < 0 {
		return 0, nil
	}
	return progress.Completed, nil
}

func progressPct(completed, total int) float64 {
	return math.Round(float64(completed)/float64(total)*1000) / 10
}
