// Command aob-engine hosts retention housekeeping for the Execution
// Engine's durable state: the cron-driven retention.Sweeper that purges
// settled events, superseded snapshots, and abandoned DLQ entries past
// their configured TTL (§8's retention configuration, resolving Open
// Question 3). The Execution Engine itself (internal/engine) runs as a
// library inside cmd/aob-api's request goroutine, not as a separate
// worker-pull process — unlike operion's action/trigger executor, every
// aob run is driven synchronously by Start/Resume, leaving nothing for a
// second process to pull work from. What a second process *can* own is
// the background housekeeping that must run regardless of request
// traffic, which is this binary's job; it exposes only health endpoints,
// mirroring operion-worker's always-on process role without its
// queue-consumption loop.
package main

import (
	"context"
	"database/sql"
	"os"
	"strconv"

	"github.com/dukex/aob/internal/cmdutil"
	"github.com/dukex/aob/internal/retention"
	"github.com/dukex/aob/internal/store/postgres"
	"github.com/dukex/aob/pkg/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9092

func main() {
	logger := log.WithModule("aob-engine")

	cmd := &cli.Command{
		Name:                  "aob-engine",
		Usage:                 "Run AOB's retention housekeeping sweeper",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to serve health checks on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Event store backend (postgres, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("STORE_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for the event store",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron schedule the retention sweep runs on",
				Value:   "@every 1h",
				Sources: cli.EnvVars("RETENTION_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "event-retention",
				Usage:   "How long published events are kept before purge (0 disables)",
				Sources: cli.EnvVars("EVENT_RETENTION"),
			},
			&cli.DurationFlag{
				Name:    "snapshot-retention",
				Usage:   "How long superseded snapshots are kept before purge (0 disables)",
				Sources: cli.EnvVars("SNAPSHOT_RETENTION"),
			},
			&cli.DurationFlag{
				Name:    "dlq-retention",
				Usage:   "How long abandoned DLQ entries are kept before purge (0 disables)",
				Sources: cli.EnvVars("DLQ_RETENTION"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger.InfoContext(ctx, "initializing aob-engine")

			storeProvider := command.String("store")

			st, closeStore, err := cmdutil.NewStore(ctx, logger, storeProvider, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeStore(); err != nil {
					logger.ErrorContext(ctx, "failed to close event store", "error", err)
				}
			}()

			var db *sql.DB

			if pgStore, ok := st.(*postgres.Store); ok {
				db = pgStore.DB()
			}

			d, err := cmdutil.NewDLQ(storeProvider, db)
			if err != nil {
				return err
			}

			policy := retention.Policy{
				EventTTL:    command.Duration("event-retention"),
				SnapshotTTL: command.Duration("snapshot-retention"),
				DLQTTL:      command.Duration("dlq-retention"),
			}

			sweeper := retention.New(logger, st, d, policy, command.String("schedule"))
			if err := sweeper.Start(ctx); err != nil {
				return err
			}

			defer sweeper.Stop(context.WithoutCancel(ctx))

			app := fiber.New()
			app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
			app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

			logger.InfoContext(ctx, "aob-engine sweeping on schedule", "schedule", command.String("schedule"))

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
