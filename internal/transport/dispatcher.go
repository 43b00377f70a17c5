package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lamim/remexec/internal/metrics"
	"github.com/lamim/remexec/internal/util"
)

// maxErrorBody bounds how much of a non-200 response body is kept, to bound
// memory and log size.
const maxErrorBody = 500

// Dispatcher issues single requests to the remote backend with an explicit
// deadline and classifies each result into one Outcome variant. No retries,
// no backoff: retry policy is a caller concern.
type Dispatcher struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher for the given backend address.
// requestsPerMinute of 0 disables client-side throttling.
func NewDispatcher(baseURL string, requestsPerMinute int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		limiter:    newLimiter(requestsPerMinute),
		logger:     logger,
	}
}

// BaseURL returns the configured backend address.
func (d *Dispatcher) BaseURL() string {
	return d.baseURL
}

// Send performs exactly one request against baseURL+endpoint with the tier's
// deadline. A non-nil body is marshaled as JSON. The result is always exactly
// one Outcome variant.
func (d *Dispatcher) Send(ctx context.Context, method, endpoint string, tier Tier, body any) Outcome {
	if err := waitLimiter(ctx, d.limiter); err != nil {
		return Outcome{Kind: OutcomeOtherFailure, Message: fmt.Sprintf("rate limiter wait failed: %v", err)}
	}

	deadline := tier.Deadline()
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Outcome{Kind: OutcomeOtherFailure, Message: fmt.Sprintf("failed to marshal request body: %v", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+endpoint, reqBody)
	if err != nil {
		return Outcome{Kind: OutcomeOtherFailure, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	d.logger.Debug("Dispatching request", "method", method, "endpoint", endpoint, "tier", tier, "deadline", deadline)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		outcome := d.classifyError(err, deadline)
		d.observe(endpoint, outcome, start)
		return outcome
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			d.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome := d.classifyError(err, deadline)
		d.observe(endpoint, outcome, start)
		return outcome
	}

	outcome := classifyResponse(resp.StatusCode, respBody)
	d.observe(endpoint, outcome, start)
	return outcome
}

// Stream issues a GET against baseURL+endpoint and, on a 200, hands the
// response body to the caller for incremental reading. The returned reader is
// non-nil only on a success outcome and must be closed by the caller; closing
// it releases the request's deadline timer. Any non-200 status or transport
// failure is classified exactly like Send, with the body fully drained.
func (d *Dispatcher) Stream(ctx context.Context, endpoint string, tier Tier) (io.ReadCloser, Outcome) {
	if err := waitLimiter(ctx, d.limiter); err != nil {
		return nil, Outcome{Kind: OutcomeOtherFailure, Message: fmt.Sprintf("rate limiter wait failed: %v", err)}
	}

	deadline := tier.Deadline()
	ctx, cancel := context.WithTimeout(ctx, deadline)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+endpoint, nil)
	if err != nil {
		cancel()
		return nil, Outcome{Kind: OutcomeOtherFailure, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		cancel()
		outcome := d.classifyError(err, deadline)
		d.observe(endpoint, outcome, start)
		return nil, outcome
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		cancel()
		outcome := Outcome{Kind: OutcomeHTTPError, Status: resp.StatusCode, Body: string(respBody)}
		d.observe(endpoint, outcome, start)
		return nil, outcome
	}

	d.observe(endpoint, Outcome{Kind: OutcomeSuccess}, start)
	return &streamBody{body: resp.Body, cancel: cancel}, Outcome{Kind: OutcomeSuccess}
}

// classifyError maps a transport-level failure onto the timeout, connection
// and other variants.
func (d *Dispatcher) classifyError(err error, deadline time.Duration) Outcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Outcome{Kind: OutcomeTimeout, Deadline: deadline}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Outcome{Kind: OutcomeConnectionFailure, Target: d.baseURL}
	}

	return Outcome{Kind: OutcomeOtherFailure, Message: err.Error()}
}

// classifyResponse maps an HTTP status and body onto the success and
// http-error variants. Only a 200 with a JSON body counts as success.
func classifyResponse(status int, body []byte) Outcome {
	if status != http.StatusOK {
		return Outcome{Kind: OutcomeHTTPError, Status: status, Body: util.Truncate(string(body), maxErrorBody)}
	}
	if !json.Valid(body) {
		return Outcome{Kind: OutcomeOtherFailure, Message: "backend returned malformed JSON"}
	}
	return Outcome{Kind: OutcomeSuccess, Payload: json.RawMessage(body)}
}

func (d *Dispatcher) observe(endpoint string, outcome Outcome, start time.Time) {
	elapsed := time.Since(start)
	// Strip the query to keep metric cardinality bounded.
	path, _, _ := strings.Cut(endpoint, "?")
	metrics.RecordRequest(path, string(outcome.Kind), elapsed)

	if !outcome.OK() {
		d.logger.Warn("Dispatch failed",
			"endpoint", path,
			"outcome", outcome.Kind,
			"detail", outcome.ErrorDetail(),
			"elapsed", elapsed)
	}
}

// streamBody ties the response body's lifetime to the request deadline timer.
type streamBody struct {
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (s *streamBody) Read(p []byte) (int, error) { return s.body.Read(p) }

func (s *streamBody) Close() error {
	err := s.body.Close()
	s.cancel()
	return err
}
