package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/dukex/aob/internal/oracle"
)

// DefaultOracleMaxAttempts bounds the Policy Oracle Client's backoff retry
// budget (§4.5) when the caller does not override it.
const DefaultOracleMaxAttempts = 3

// NewOracle builds the Policy Oracle Client named by provider ("http" or
// "allow-all"). baseURL/decisionPath are required for "http".
func NewOracle(logger *slog.Logger, provider, baseURL, decisionPath string) (oracle.Client, error) {
	switch provider {
	case "http":
		return oracle.NewHTTPClient(logger, baseURL, decisionPath, DefaultOracleMaxAttempts), nil
	case "allow-all", "":
		return oracle.AllowAll(), nil
	default:
		return nil, fmt.Errorf("cmdutil: unsupported oracle provider %q", provider)
	}
}
