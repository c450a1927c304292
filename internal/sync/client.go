package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RetryConfig governs uploadDataChunk's retry loop. Factor is exposed as a
// field rather than a constant so a caller needing a different backoff
// curve can construct its own RetryConfig; 1.05 is close enough to 1 that
// the default is effectively fixed-delay.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
}

// DefaultRetryConfig allows up to 5 attempts, a 200ms initial delay, and a
// 1.05 multiplicative backoff factor.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, Factor: 1.05}
}

// NewHTTPClient builds a pooled, timeout-bounded *http.Client for talking to
// the persister service: connection pooling via MaxIdleConnsPerHost and an
// idle connection timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: UploadConcurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client is the synchronization pipeline's HTTP surface: job lifecycle
// calls and chunked upload dispatch against the persister API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retry      RetryConfig
}

// NewClient constructs a Client. httpClient may be nil, in which case
// NewHTTPClient(30 * time.Second) is used.
func NewClient(baseURL string, httpClient *http.Client, retry RetryConfig) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, retry: retry}
}

// doJSON POSTs body as JSON to path and returns the raw response body on a
// 2xx status. Non-2xx responses are translated into an *APIError, extracting
// the server's { error: { code, message } } envelope when present.
func (c *Client) doJSON(ctx context.Context, path string, body any, correlationID string) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID != "" {
		req.Header.Set("JupiterOne-Correlation-Id", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	apiErr := &APIError{HTTPStatus: resp.StatusCode, Message: string(respBody)}
	var envelope errorEnvelope
	if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return nil, apiErr
}

func newCorrelationID() string { return uuid.NewString() }

// Initiate starts a new synchronization job, attaching its identifiers to
// the caller's logger is the caller's responsibility (via ctxlog.WithLogger
// on the returned job's fields).
func (c *Client) Initiate(ctx context.Context, integrationInstanceID string) (*SynchronizationJob, error) {
	body := map[string]any{
		"source":                "integration-managed",
		"integrationInstanceId": integrationInstanceID,
	}
	data, err := c.doJSON(ctx, "/persister/synchronization/jobs", body, newCorrelationID())
	if err != nil {
		return nil, wrapAPIError(err)
	}
	var decoded struct {
		Job SynchronizationJob `json:"job"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding initiate response: %w", err)
	}
	return &decoded.Job, nil
}

// Finalize tells the server no more uploads are coming for jobID. Exactly
// one of Finalize or Abort must be called per initiated job.
func (c *Client) Finalize(ctx context.Context, jobID string, partial PartialDatasets) (*SynchronizationJob, error) {
	body := map[string]any{"partialDatasets": partial}
	data, err := c.doJSON(ctx, fmt.Sprintf("/persister/synchronization/jobs/%s/finalize", jobID), body, newCorrelationID())
	if err != nil {
		return nil, wrapAPIError(err)
	}
	var decoded struct {
		Job SynchronizationJob `json:"job"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding finalize response: %w", err)
	}
	return &decoded.Job, nil
}

// Abort tells the server to discard jobID. It is invoked whenever upload
// fails; any abort failure is the caller's to log and re-raise in
// preference to the original error.
func (c *Client) Abort(ctx context.Context, jobID, reason string) (*SynchronizationJob, error) {
	body := map[string]any{"reason": reason}
	data, err := c.doJSON(ctx, fmt.Sprintf("/persister/synchronization/jobs/%s/abort", jobID), body, newCorrelationID())
	if err != nil {
		return nil, wrapAPIError(err)
	}
	var decoded struct {
		Job SynchronizationJob `json:"job"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding abort response: %w", err)
	}
	return &decoded.Job, nil
}

// wrapAPIError stamps a stable synchronization-api-error code onto errors
// that doJSON didn't already attribute to the server's error envelope.
func wrapAPIError(err error) error {
	if apiErr, ok := err.(*APIError); ok && apiErr.Code != "" {
		return apiErr
	}
	return &APIError{Code: CodeSynchronizationAPIError, Message: err.Error(), Cause: err}
}
