package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/dukex/aob/internal/audit"
)

// NewAuditRecorder builds the Decision Recorder named by provider ("http"
// or "memory"). endpoint is required for "http".
func NewAuditRecorder(logger *slog.Logger, provider, endpoint string) (*audit.Recorder, error) {
	switch provider {
	case "http":
		return audit.New(logger, audit.NewHTTPSink(endpoint)), nil
	case "memory", "":
		return audit.New(logger, audit.NewMemorySink()), nil
	default:
		return nil, fmt.Errorf("cmdutil: unsupported audit sink provider %q", provider)
	}
}
