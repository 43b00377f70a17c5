package models

import "encoding/json"

// Response shapes for the known backend endpoints. The backend is free to
// attach extra fields; anything this client only passes through is kept as
// raw JSON rather than forced into a struct.

// HealthStatus is the /health response.
type HealthStatus struct {
	Status            string  `json:"status,omitempty"`
	UptimeMinutes     float64 `json:"uptime_minutes,omitempty"`
	MemoryAvailableGB float64 `json:"memory_available_gb,omitempty"`
}

// EnvironmentInfo is the /probe response: compute, accelerator and session
// limit figures used to derive recommendations.
type EnvironmentInfo struct {
	Compute  ComputeInfo     `json:"compute"`
	GPU      GPUInfo         `json:"gpu"`
	Limits   SessionLimits   `json:"limits"`
	Packages json.RawMessage `json:"packages,omitempty"`
}

// ComputeInfo describes CPU and memory resources.
type ComputeInfo struct {
	CPUCores       int     `json:"cpu_cores,omitempty"`
	RAMTotalGB     float64 `json:"ram_total_gb,omitempty"`
	RAMAvailableGB float64 `json:"ram_available_gb,omitempty"`
}

// GPUInfo describes accelerator availability.
type GPUInfo struct {
	Available bool    `json:"available"`
	Name      string  `json:"name,omitempty"`
	MemoryGB  float64 `json:"memory_gb,omitempty"`
}

// SessionLimits carries the backend's session budget estimates.
type SessionLimits struct {
	EstimatedSessionMinutesRemaining float64 `json:"estimated_session_minutes_remaining,omitempty"`
	RecommendedBatchSize             int     `json:"recommended_batch_size,omitempty"`
}

// ExecuteResult is the /execute response.
type ExecuteResult struct {
	Stdout           string  `json:"stdout"`
	Stderr           string  `json:"stderr,omitempty"`
	ExecutionTimeSec float64 `json:"execution_time_sec"`
	MemoryAfterGB    float64 `json:"memory_after_gb,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// FileEntry is one entry in the /files/list response.
type FileEntry struct {
	Name    string  `json:"name"`
	Path    string  `json:"path,omitempty"`
	SizeMB  float64 `json:"size_mb,omitempty"`
	IsDir   bool    `json:"is_dir,omitempty"`
	ModTime string  `json:"mod_time,omitempty"`
}

// FileList is the /files/list response.
type FileList struct {
	Path  string      `json:"path,omitempty"`
	Files []FileEntry `json:"files"`
}

// CleanupStats is the /cleanup response.
type CleanupStats struct {
	MemoryFreedMB    float64 `json:"memory_freed_mb"`
	VariablesCleared int     `json:"variables_cleared"`
}

// VariableInfo is one entry in the /variables response.
type VariableInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Size  string `json:"size,omitempty"`
	Shape string `json:"shape,omitempty"`
}

// VariableList is the /variables response.
type VariableList struct {
	Count     int            `json:"count"`
	Variables []VariableInfo `json:"variables"`
}
