package cmdutil

import (
	"database/sql"
	"fmt"

	"github.com/dukex/aob/internal/dlq"
)

// NewDLQ builds the Dead-Letter Queue named by provider ("postgres" or
// "memory"). db is required for "postgres" — callers on the postgres store
// provider share the Event Store's *sql.DB (see store.go's *postgres.Store
// type assertion in cmd/aob-*) rather than opening a second connection.
func NewDLQ(provider string, db *sql.DB) (dlq.DLQ, error) {
	switch provider {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("cmdutil: postgres dlq requires a *sql.DB")
		}

		return dlq.NewPostgres(db), nil
	case "memory", "":
		return dlq.NewMemory(), nil
	default:
		return nil, fmt.Errorf("cmdutil: unsupported dlq provider %q", provider)
	}
}
