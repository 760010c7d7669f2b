package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/aob/pkg/models"
)

// HTTPClient evaluates edges against an OPA-shaped decision endpoint:
// POST {baseURL}/v1/data/{decisionPath} with {"input": ...}, reading back
// {"result": {"allow": bool, "reason": string}}. The wire shape follows
// the original prototype's OpaPolicyEvaluator (see SPEC_FULL.md).
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	decisionPath string
	maxAttempts  uint64
	logger       *slog.Logger
}

// NewHTTPClient constructs an oracle client with bounded exponential
// backoff retry (§4.5's "P attempts"), using cenkalti/backoff/v4.
func NewHTTPClient(logger *slog.Logger, baseURL, decisionPath string, maxAttempts uint64) *HTTPClient {
	return &HTTPClient{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		baseURL:      baseURL,
		decisionPath: decisionPath,
		maxAttempts:  maxAttempts,
		logger:       logger,
	}
}

type evaluateRequest struct {
	Input map[string]any `json:"input"`
}

type evaluateResponse struct {
	Result struct {
		Allow  bool   `json:"allow"`
		Reason string `json:"reason"`
	} `json:"result"`
}

func (c *HTTPClient) Evaluate(ctx context.Context, edge models.Edge, runCtx models.RunContext) Decision {
	body := evaluateRequest{Input: map[string]any{
		"edge":     edge,
		"policies": edge.Policies,
		"ctx":      map[string]any{"bag": runCtx.Bag},
	}}

	payload, err := json.Marshal(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to marshal oracle request", "error", err)

		return Decision{Allow: false, Reason: OracleUnavailableReason}
	}

	url := fmt.Sprintf("%s/v1/data/%s", c.baseURL, c.decisionPath)

	var resp evaluateResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("oracle returned status %d", httpResp.StatusCode)
		}

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return err
		}

		if httpResp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("oracle returned status %d: %s", httpResp.StatusCode, data))
		}

		return json.Unmarshal(data, &resp)
	}

	// WithMaxRetries counts retries after the first call, so maxAttempts
	// calls in total is maxAttempts-1 retries.
	retries := c.maxAttempts
	if retries > 0 {
		retries--
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries)

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		c.logger.ErrorContext(ctx, "oracle unavailable after retries", "error", err)

		return Decision{Allow: false, Reason: OracleUnavailableReason}
	}

	return Decision{Allow: resp.Result.Allow, Reason: resp.Result.Reason}
}
