package agent

import (
	"time"

	"github.com/lamim/remexec/pkg/models"
)

// Every capability returns a response describing success or the specific
// failure; transport and storage problems never surface as process-killing
// errors. The shapes below mirror what the RPC-exposure layer serializes.

// ConnectionStatus is the connection check response.
type ConnectionStatus struct {
	Status            string  `json:"status"` // "connected" or "disconnected"
	BackendURL        string  `json:"backend_url"`
	UptimeMinutes     float64 `json:"uptime_minutes,omitempty"`
	MemoryAvailableGB float64 `json:"memory_available_gb,omitempty"`
	Error             string  `json:"error,omitempty"`
	Suggestion        string  `json:"suggestion,omitempty"`
}

// ProbeResult is the environment probe response with derived advisories.
type ProbeResult struct {
	Success         bool     `json:"success"`
	Error           string   `json:"error,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	models.EnvironmentInfo
}

// ExecResult is the response for single-shot code execution.
type ExecResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Stdout           string  `json:"stdout,omitempty"`
	Stderr           string  `json:"stderr,omitempty"`
	ExecutionTimeSec float64 `json:"execution_time_sec,omitempty"`
	MemoryAfterGB    float64 `json:"memory_after_gb,omitempty"`

	// CheckpointSaved is the record location when a long run requested
	// checkpointing.
	CheckpointSaved string `json:"checkpoint_saved,omitempty"`
}

// FilesResult is the file listing response.
type FilesResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Path  string             `json:"path,omitempty"`
	Files []models.FileEntry `json:"files,omitempty"`
}

// DownloadResult is the file download response.
type DownloadResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	LocalPath string    `json:"local_path,omitempty"`
	SizeMB    float64   `json:"size_mb,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// CleanupResult is the memory cleanup response.
type CleanupResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	MemoryFreedMB    float64 `json:"memory_freed_mb,omitempty"`
	VariablesCleared int     `json:"variables_cleared,omitempty"`
}

// VariablesResult is the variable listing response.
type VariablesResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Count     int                   `json:"count"`
	Variables []models.VariableInfo `json:"variables,omitempty"`
}

// CheckpointResult is the checkpoint lookup response.
type CheckpointResult struct {
	Exists  bool                     `json:"exists"`
	Message string                   `json:"message,omitempty"`
	Record  *models.CheckpointRecord `json:"record,omitempty"`
}
