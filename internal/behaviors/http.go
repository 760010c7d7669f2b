// Package behaviors provides engine.Behavior implementations for Task
// nodes, adapted from operion's pkg/actions (http_request, log) to the
// engine.Behavior{Execute(ctx, input, runCtx) (map[string]any, error)}
// shape. Agent-node (model/tool) behaviors are out of this package's
// scope — they are supplied by the deployment wiring them in, per
// SPEC_FULL.md's tool/model adapter boundary.
package behaviors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// HTTPBehavior executes a Task node as a single HTTP request, JSON-
// encoding input as the request body and decoding a JSON response body
// as the node's output. Grounded on
// operion/pkg/actions/http_request/action.go's request-building shape,
// simplified to the engine's single-attempt-per-call contract (retry is
// the engine's job via models.RetryPolicy, not the behavior's).
type HTTPBehavior struct {
	Method  string
	URL     string
	Headers map[string]string
	Timeout time.Duration
	client  *http.Client
}

// NewHTTPBehavior builds an HTTPBehavior. timeout <= 0 falls back to 30s.
func NewHTTPBehavior(method, url string, headers map[string]string, timeout time.Duration) *HTTPBehavior {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if method == "" {
		method = http.MethodPost
	}

	return &HTTPBehavior{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: headers,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBehavior) Execute(ctx context.Context, input any, _ models.RunContext) (map[string]any, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("behaviors: marshal input: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, b.Method, b.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("behaviors: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range b.Headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, transientNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("behaviors: read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, transientNetworkError(fmt.Errorf("behaviors: upstream %s returned %d: %s", b.URL, resp.StatusCode, body))
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("behaviors: upstream %s returned %d: %s", b.URL, resp.StatusCode, body)
	}

	if len(body) == 0 {
		return map[string]any{"status_code": resp.StatusCode}, nil
	}

	var output map[string]any
	if err := json.Unmarshal(body, &output); err != nil {
		output = map[string]any{"raw": string(body)}
	}

	output["status_code"] = resp.StatusCode

	return output, nil
}
