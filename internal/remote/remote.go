// Package remote implements the client for the backend's idempotent
// create-or-acknowledge API.
//
// Every submission carries the record's request ID so retries of the same
// logical operation are recognized as duplicates server-side. The client
// never classifies on its own: a transport failure (no usable response) is
// returned as a Go error, while any response the server produced is mapped
// to a Result the orchestrator can act on.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

// Outcome is the server's classification of a submission.
type Outcome int

const (
	// OutcomeSuccess means the record was created and assigned a remote id.
	OutcomeSuccess Outcome = iota
	// OutcomeAlreadyProcessed means a retried request ID matched a prior
	// submission. Treated identically to success.
	OutcomeAlreadyProcessed
	// OutcomeRetryable means the server rejected the submission but a retry
	// may succeed (5xx, rate limit, transient rejection).
	OutcomeRetryable
	// OutcomePermanent means the server rejected the submission for good
	// (validation failure, business-rule conflict).
	OutcomePermanent
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Result is the server's answer to a single-record submission.
type Result struct {
	Outcome     Outcome
	RemoteID    string
	Code        string
	Message     string
	RateLimited bool
}

// Accepted reports whether the submission should be marked synced.
func (r Result) Accepted() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeAlreadyProcessed
}

// LocationUpload is one sample in a batched submission, tagged with its
// parent shift's remote identifier.
type LocationUpload struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	ShiftRemoteID string    `json:"shift_remote_id"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	AccuracyM     float64   `json:"accuracy_m"`
	SpeedMPS      float64   `json:"speed_mps"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// BatchItemError is a per-item rejection inside an otherwise accepted batch.
type BatchItemError struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult summarizes a batched submission. Inserted and duplicate items
// both count as success.
type BatchResult struct {
	Inserted   int              `json:"inserted"`
	Duplicates int              `json:"duplicates"`
	Rejected   []BatchItemError `json:"rejected,omitempty"`
}

// API is the remote backend boundary. Implemented by Client for production
// and by fakes in tests.
type API interface {
	// SubmitShift submits one shift. An error return means the call never
	// produced a usable response (network failure or timeout).
	SubmitShift(ctx context.Context, sh *record.Shift) (Result, error)

	// SubmitDiagnostic submits one diagnostic event.
	SubmitDiagnostic(ctx context.Context, d *record.DiagnosticEvent) (Result, error)

	// SubmitLocations submits a batch of samples already mapped to their
	// parent shifts' remote identifiers.
	SubmitLocations(ctx context.Context, batch []LocationUpload) (BatchResult, error)
}

// Client is the HTTP implementation of API.
type Client struct {
	BaseURL    string
	APIKey     string
	DeviceID   string
	HTTPClient *http.Client
}

// NewClient creates a client with a bounded per-call timeout.
func NewClient(baseURL, apiKey, deviceID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		DeviceID:   deviceID,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// envelope is the wire shape of single-record responses.
type envelope struct {
	Status   string `json:"status"` // created, duplicate, error
	RemoteID string `json:"remote_id,omitempty"`
	Error    *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error,omitempty"`
}

// SubmitShift implements API.
func (c *Client) SubmitShift(ctx context.Context, sh *record.Shift) (Result, error) {
	return c.submitOne(ctx, "/v1/shifts", sh.RequestID, sh)
}

// SubmitDiagnostic implements API.
func (c *Client) SubmitDiagnostic(ctx context.Context, d *record.DiagnosticEvent) (Result, error) {
	return c.submitOne(ctx, "/v1/diagnostics", d.RequestID, d)
}

func (c *Client) submitOne(ctx context.Context, path, requestID string, payload any) (Result, error) {
	status, body, err := c.post(ctx, path, requestID, payload)
	if err != nil {
		return Result{}, err
	}
	return parseSingle(status, body)
}

// SubmitLocations implements API.
func (c *Client) SubmitLocations(ctx context.Context, batch []LocationUpload) (BatchResult, error) {
	status, body, err := c.post(ctx, "/v1/locations/batch", "", map[string]any{"items": batch})
	if err != nil {
		return BatchResult{}, err
	}

	if status == http.StatusTooManyRequests || status >= 500 {
		return BatchResult{}, fmt.Errorf("batch submit rejected with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var res BatchResult
	if err := json.Unmarshal(body, &res); err != nil {
		return BatchResult{}, fmt.Errorf("malformed batch response: %w", err)
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, path, requestID string, payload any) (int, []byte, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(blob))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// parseSingle maps an HTTP response to a Result. Anything the server said is
// a Result, never an error: errors are reserved for transport failures.
func parseSingle(status int, body []byte) (Result, error) {
	if status == http.StatusTooManyRequests {
		return Result{
			Outcome:     OutcomeRetryable,
			Code:        "rate_limited",
			Message:     "server rate limit exceeded",
			RateLimited: true,
		}, nil
	}
	if status >= 500 {
		return Result{
			Outcome: OutcomeRetryable,
			Code:    fmt.Sprintf("http_%d", status),
			Message: strings.TrimSpace(string(body)),
		}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// A garbled 2xx body is transient: the server may have accepted
		// the record, so the safe move is to retry the same request ID.
		return Result{
			Outcome: OutcomeRetryable,
			Code:    "malformed_response",
			Message: fmt.Sprintf("unparseable response (status %d)", status),
		}, nil
	}

	switch env.Status {
	case "created":
		return Result{Outcome: OutcomeSuccess, RemoteID: env.RemoteID}, nil
	case "duplicate":
		return Result{Outcome: OutcomeAlreadyProcessed, RemoteID: env.RemoteID}, nil
	}

	res := Result{Outcome: OutcomePermanent, Code: "rejected", Message: strings.TrimSpace(string(body))}
	if env.Error != nil {
		res.Code = env.Error.Code
		res.Message = env.Error.Message
		if env.Error.Retryable {
			res.Outcome = OutcomeRetryable
		}
	}
	return res, nil
}
