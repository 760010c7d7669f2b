package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/aob/pkg/models"
)

// HTTPSink posts DecisionRecords as JSON, grounded on the original
// prototype's HttpAuditSink (SPEC_FULL.md). Export-structured batching
// (columnar files) is expected to sit behind this same Sink interface in
// a production deployment; this sink is the narrow HTTP case.
type HTTPSink struct {
	client   *http.Client
	endpoint string
}

// NewHTTPSink posts each record individually to endpoint.
func NewHTTPSink(endpoint string) *HTTPSink {
	return &HTTPSink{client: &http.Client{Timeout: 5 * time.Second}, endpoint: endpoint}
}

func (s *HTTPSink) Record(ctx context.Context, record models.DecisionRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal decision record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("audit: failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: sink request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit: sink returned status %d", resp.StatusCode)
	}

	return nil
}
