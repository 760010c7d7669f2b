// Package cmdutil provides the provider-switch construction helpers shared
// by every cmd/aob-* binary, mirroring operion/pkg/cmd's
// NewRegistry/NewEventBus/NewPersistence pattern: a CLI flag picks a
// provider string, and the matching backend is constructed and returned
// behind the package's interface.
package cmdutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/aob/internal/store"
	"github.com/dukex/aob/internal/store/memory"
	"github.com/dukex/aob/internal/store/postgres"
)

// NewStore builds the Event Store backend named by provider ("postgres" or
// "memory"). databaseURL is required for "postgres" and ignored otherwise.
func NewStore(ctx context.Context, logger *slog.Logger, provider, databaseURL string) (store.EventStore, func() error, error) {
	switch provider {
	case "postgres":
		st, err := postgres.New(ctx, logger, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("cmdutil: postgres store: %w", err)
		}

		return st, st.Close, nil
	case "memory", "":
		st := memory.New()

		return st, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("cmdutil: unsupported store provider %q", provider)
	}
}
