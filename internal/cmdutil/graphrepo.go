package cmdutil

import (
	"database/sql"
	"fmt"

	"github.com/dukex/aob/internal/api"
	"github.com/dukex/aob/internal/graph"
	"github.com/dukex/aob/internal/graph/memrepo"
	"github.com/dukex/aob/internal/store/postgres"
)

// NewSpecRepository builds the WorkflowSpec Repository named by provider
// ("postgres" or "memory"), sharing the Event Store's *sql.DB for
// "postgres".
func NewSpecRepository(provider string, db *sql.DB) (graph.Repository, error) {
	switch provider {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("cmdutil: postgres spec repository requires a *sql.DB")
		}

		return postgres.NewSpecRepository(db), nil
	case "memory", "":
		return memrepo.New(), nil
	default:
		return nil, fmt.Errorf("cmdutil: unsupported spec repository provider %q", provider)
	}
}

// NewRunIndex builds the run-to-workflow RunIndex named by provider
// ("postgres" or "memory"), sharing the Event Store's *sql.DB for
// "postgres".
func NewRunIndex(provider string, db *sql.DB) (api.RunIndex, error) {
	switch provider {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("cmdutil: postgres run index requires a *sql.DB")
		}

		return postgres.NewRunIndex(db), nil
	case "memory", "":
		return api.NewMemoryRunIndex(), nil
	default:
		return nil, fmt.Errorf("cmdutil: unsupported run index provider %q", provider)
	}
}
