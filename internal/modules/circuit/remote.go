package circuit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/quantfolio/qpo/internal/modules/backends"
)

const (
	submitTimeout    = 15 * time.Second
	pollInterval     = 2 * time.Second
	wsDialTimeout    = 10 * time.Second
	hardwareDeadline = 30 * time.Minute
	simDeadline      = 3 * time.Minute
)

// jobRequest is the msgpack wire format accepted by the runtime gateway.
type jobRequest struct {
	Backend   string      `msgpack:"backend"`
	NumQubits int         `msgpack:"num_qubits"`
	H         []float64   `msgpack:"h"`
	J         [][]float64 `msgpack:"j"`
	Depth     int         `msgpack:"depth"`
	Params    []float64   `msgpack:"params"`
	Shots     int         `msgpack:"shots"`
}

// jobStatus is the gateway's job state document, returned from both the
// polling endpoint and the status stream.
type jobStatus struct {
	JobID     string         `msgpack:"job_id" json:"job_id"`
	Status    string         `msgpack:"status" json:"status"`
	Counts    map[string]int `msgpack:"counts" json:"counts"`
	Error     string         `msgpack:"error" json:"error"`
	Retryable bool           `msgpack:"retryable" json:"retryable"`
}

// RemoteClient executes circuits through the runtime gateway that fronts
// hardware and cloud simulators. Jobs are submitted over HTTP with msgpack
// bodies; completion is watched over a websocket status stream, falling back
// to polling when the stream cannot be established.
type RemoteClient struct {
	baseURL      string
	token        string
	pricePerShot float64
	httpClient   *http.Client
	log          zerolog.Logger
}

// NewRemoteClient creates a gateway client. An empty baseURL produces a
// client whose every execution reports the backend unavailable, which keeps
// local-only deployments on the fallback chain without special cases.
func NewRemoteClient(baseURL, token string, pricePerShot float64, client *http.Client, log zerolog.Logger) *RemoteClient {
	if client == nil {
		client = &http.Client{Timeout: submitTimeout}
	}
	return &RemoteClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		pricePerShot: pricePerShot,
		httpClient:   client,
		log:          log.With().Str("component", "remote_client").Logger(),
	}
}

// Execute implements Executor
func (c *RemoteClient) Execute(ctx context.Context, desc backends.Descriptor, req *Request) (*Result, error) {
	if err := validateRequest(desc, req); err != nil {
		return nil, err
	}
	if c.baseURL == "" {
		return nil, &BackendUnavailableError{BackendID: desc.ID, Reason: "no runtime gateway configured"}
	}
	if req.NumQubits() > desc.MaxQubits {
		return nil, &BackendUnavailableError{BackendID: desc.ID, Reason: "problem exceeds qubit capacity"}
	}

	deadline := simDeadline
	if desc.Tier == backends.TierHardware {
		deadline = hardwareDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()

	jobID, err := c.submit(ctx, desc, req)
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("job_id", jobID).
		Str("backend", desc.ID).
		Msg("Remote job submitted")

	status, err := c.await(ctx, desc, jobID)
	if err != nil {
		return nil, err
	}

	if status.Status != "completed" {
		return nil, classifyJobFailure(desc.ID, status)
	}
	if len(status.Counts) == 0 {
		return nil, &TransientExecutionError{BackendID: desc.ID, Reason: "gateway returned empty counts"}
	}

	cost := 0.0
	if desc.Tier == backends.TierHardware {
		cost = float64(req.Shots) * c.pricePerShot
	}

	return &Result{
		Counts:        status.Counts,
		BackendID:     desc.ID,
		Tier:          desc.Tier,
		Duration:      time.Since(start),
		EstimatedCost: cost,
	}, nil
}

// submit posts the job and returns the gateway-assigned job ID.
func (c *RemoteClient) submit(ctx context.Context, desc backends.Descriptor, req *Request) (string, error) {
	payload := jobRequest{
		Backend:   desc.ID,
		NumQubits: req.NumQubits(),
		H:         req.Ising.H,
		J:         req.Ising.J,
		Depth:     req.Depth,
		Params:    req.Params,
		Shots:     req.Shots,
	}

	body, err := msgpack.Marshal(payload)
	if err != nil {
		return "", &FatalExecutionError{BackendID: desc.ID, Reason: "failed to encode job request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", &FatalExecutionError{BackendID: desc.ID, Reason: "failed to build job request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/msgpack")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransientExecutionError{BackendID: desc.ID, Reason: "gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(desc.ID, resp.StatusCode); err != nil {
		return "", err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientExecutionError{BackendID: desc.ID, Reason: "failed to read submit response", Err: err}
	}

	var status jobStatus
	if err := msgpack.Unmarshal(raw, &status); err != nil {
		return "", &TransientExecutionError{BackendID: desc.ID, Reason: "malformed submit response", Err: err}
	}
	if status.JobID == "" {
		return "", &TransientExecutionError{BackendID: desc.ID, Reason: "gateway did not assign a job id"}
	}
	return status.JobID, nil
}

// await waits for the job to reach a terminal state, preferring the
// websocket status stream and degrading to polling.
func (c *RemoteClient) await(ctx context.Context, desc backends.Descriptor, jobID string) (*jobStatus, error) {
	if status, err := c.awaitStream(ctx, jobID); err == nil {
		return status, nil
	} else if ctx.Err() != nil {
		return nil, &TransientExecutionError{BackendID: desc.ID, Reason: "timed out waiting for remote job", Err: ctx.Err()}
	} else {
		c.log.Debug().Err(err).Str("job_id", jobID).Msg("Status stream unavailable, falling back to polling")
	}
	return c.awaitPolling(ctx, desc, jobID)
}

// awaitStream watches the websocket status stream until a terminal status.
func (c *RemoteClient) awaitStream(ctx context.Context, jobID string) (*jobStatus, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/jobs/" + jobID + "/stream"

	dialCtx, dialCancel := context.WithTimeout(ctx, wsDialTimeout)
	defer dialCancel()

	headers := http.Header{}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial status stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("status stream read failed: %w", err)
		}

		var status jobStatus
		if err := msgpack.Unmarshal(message, &status); err != nil {
			return nil, fmt.Errorf("malformed status message: %w", err)
		}
		if status.Status == "completed" || status.Status == "failed" {
			return &status, nil
		}
	}
}

// awaitPolling polls the job status endpoint until a terminal status.
func (c *RemoteClient) awaitPolling(ctx context.Context, desc backends.Descriptor, jobID string) (*jobStatus, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &TransientExecutionError{BackendID: desc.ID, Reason: "timed out waiting for remote job", Err: ctx.Err()}
		case <-ticker.C:
		}

		status, err := c.pollOnce(ctx, desc, jobID)
		if err != nil {
			if IsTransient(err) {
				c.log.Debug().Err(err).Str("job_id", jobID).Msg("Poll attempt failed, will retry")
				continue
			}
			return nil, err
		}
		if status.Status == "completed" || status.Status == "failed" {
			return status, nil
		}
	}
}

func (c *RemoteClient) pollOnce(ctx context.Context, desc backends.Descriptor, jobID string) (*jobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, &FatalExecutionError{BackendID: desc.ID, Reason: "failed to build status request", Err: err}
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransientExecutionError{BackendID: desc.ID, Reason: "gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyHTTPStatus(desc.ID, resp.StatusCode); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientExecutionError{BackendID: desc.ID, Reason: "failed to read status response", Err: err}
	}

	var status jobStatus
	if err := msgpack.Unmarshal(raw, &status); err != nil {
		return nil, &TransientExecutionError{BackendID: desc.ID, Reason: "malformed status response", Err: err}
	}
	return &status, nil
}

// classifyHTTPStatus maps gateway HTTP statuses onto the execution error
// taxonomy. Client errors other than rate limiting are fatal: the request
// itself is wrong and will not improve on retry.
func classifyHTTPStatus(backendID string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return &BackendUnavailableError{BackendID: backendID, Reason: "gateway endpoint not found"}
	case code == http.StatusTooManyRequests:
		return &TransientExecutionError{BackendID: backendID, Reason: "gateway rate limited"}
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return &FatalExecutionError{BackendID: backendID, Reason: fmt.Sprintf("gateway rejected credentials (status %d)", code)}
	case code >= 400 && code < 500:
		return &FatalExecutionError{BackendID: backendID, Reason: fmt.Sprintf("gateway rejected job (status %d)", code)}
	default:
		return &TransientExecutionError{BackendID: backendID, Reason: fmt.Sprintf("gateway error (status %d)", code)}
	}
}

// classifyJobFailure maps a failed terminal status onto the error taxonomy
// using the gateway's retryable hint.
func classifyJobFailure(backendID string, status *jobStatus) error {
	reason := status.Error
	if reason == "" {
		reason = "remote job failed"
	}
	if status.Retryable {
		return &TransientExecutionError{BackendID: backendID, Reason: reason}
	}
	return &FatalExecutionError{BackendID: backendID, Reason: reason}
}
