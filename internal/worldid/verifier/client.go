// Package verifier talks to the remote World ID proof verification API. The
// zero-knowledge check happens there; this client only normalizes the answer.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"personhood/internal/platform/metrics"
)

const (
	CodeSuccess           = "SUCCESS"
	CodeVerificationError = "VERIFICATION_ERROR"
	CodeNetworkError      = "NETWORK_ERROR"

	detailSuccess      = "Verification successful"
	detailFailed       = "Verification failed"
	detailNetworkError = "Network error during verification"

	maxResponseBytes = 1 << 20
)

// Request is the body posted to /verify/{app_id}.
type Request struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Signal            string `json:"signal"`
}

// Outcome is the normalized verifier answer. Every failure, including
// transport failures, is an Outcome with Success=false.
type Outcome struct {
	Success   bool
	Detail    string
	Code      string
	Attribute json.RawMessage
}

// RemoteError carries a rejected Outcome through the error chain.
type RemoteError struct {
	Detail string
	Code   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("world id verification failed [%s]: %s", e.Code, e.Detail)
}

// Err converts a failed outcome into a *RemoteError; nil on success.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return &RemoteError{Detail: o.Detail, Code: o.Code}
}

type apiResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// Client calls POST {baseURL}/verify/{appID} with a bearer API key.
type Client struct {
	baseURL    string
	appID      string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// New constructs a Client. timeout bounds every call regardless of the
// caller's context.
func New(baseURL, appID, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		apiKey:  apiKey,
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c
}

// VerifyProof submits req and never returns an error: every failure path is
// represented in the Outcome.
func (c *Client) VerifyProof(ctx context.Context, req Request) Outcome {
	start := time.Now()
	outcome := c.verify(ctx, req)
	c.metrics.ObserveRemoteLatency(outcome.Code, time.Since(start))
	return outcome
}

func (c *Client) verify(ctx context.Context, req Request) Outcome {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return c.networkError(ctx, "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/verify/%s", c.baseURL, c.appID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.networkError(ctx, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.networkError(ctx, "send request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.networkError(ctx, "read response", err)
	}

	return c.parse(ctx, resp.StatusCode, raw)
}

func (c *Client) parse(ctx context.Context, status int, raw []byte) Outcome {
	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return c.networkError(ctx, "decode response", err)
	}

	if status < 200 || status > 299 {
		out := Outcome{
			Success: false,
			Detail:  orDefault(parsed.Detail, detailFailed),
			Code:    orDefault(parsed.Code, CodeVerificationError),
		}
		c.logger.WarnContext(ctx, "world id verification rejected",
			"status", status,
			"code", out.Code,
			"detail", out.Detail,
		)
		return out
	}

	return Outcome{
		Success:   true,
		Detail:    orDefault(parsed.Detail, detailSuccess),
		Code:      orDefault(parsed.Code, CodeSuccess),
		Attribute: json.RawMessage(raw),
	}
}

func (c *Client) networkError(ctx context.Context, stage string, err error) Outcome {
	c.logger.ErrorContext(ctx, "world id verification network error",
		"stage", stage,
		"error", err,
	)
	return Outcome{Success: false, Detail: detailNetworkError, Code: CodeNetworkError}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
