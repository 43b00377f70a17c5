package transport

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutcomeKind is the closed set of dispatch result classifications.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeHTTPError         OutcomeKind = "http_error"
	OutcomeTimeout           OutcomeKind = "timeout"
	OutcomeConnectionFailure OutcomeKind = "connection_failed"
	OutcomeOtherFailure      OutcomeKind = "error"
)

// Outcome is the tagged result of exactly one dispatch attempt. Exactly one
// variant applies per call; Payload is only present on success.
type Outcome struct {
	Kind OutcomeKind

	// Success
	Payload json.RawMessage

	// HTTPError
	Status int
	Body   string // At most maxErrorBody bytes of the response body

	// Timeout: the configured deadline, not the elapsed time, so the caller
	// can report "this exceeded Ns" accurately.
	Deadline time.Duration

	// ConnectionFailure: the configured base address, to aid diagnosis.
	Target string

	// OtherFailure
	Message string
}

// OK reports whether the dispatch succeeded with a payload.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// ErrorDetail renders the failure variant as a human-readable diagnostic.
// Returns "" for a successful outcome.
func (o Outcome) ErrorDetail() string {
	switch o.Kind {
	case OutcomeSuccess:
		return ""
	case OutcomeHTTPError:
		return fmt.Sprintf("HTTP %d", o.Status)
	case OutcomeTimeout:
		return fmt.Sprintf("TIMEOUT: operation took longer than %ds", int(o.Deadline/time.Second))
	case OutcomeConnectionFailure:
		return fmt.Sprintf("CONNECTION_FAILED: %s unreachable", o.Target)
	default:
		return o.Message
	}
}

// Decode unmarshals the success payload into v.
func (o Outcome) Decode(v any) error {
	if !o.OK() {
		return fmt.Errorf("cannot decode payload from %s outcome", o.Kind)
	}
	return json.Unmarshal(o.Payload, v)
}
