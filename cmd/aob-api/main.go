// Command aob-api hosts the Control API: the HTTP ingress over
// compile/start/resume/replay/dlq, driving the Execution Engine
// synchronously against the request goroutine (§4.7, §6). It mirrors
// operion/cmd/operion-api's CLI/flag layout.
package main

import (
	"context"
	"database/sql"
	"os"
	"strconv"

	"github.com/dukex/aob/internal/api"
	"github.com/dukex/aob/internal/cmdutil"
	"github.com/dukex/aob/internal/engine"
	"github.com/dukex/aob/internal/otelhelper"
	"github.com/dukex/aob/internal/store/postgres"
	"github.com/dukex/aob/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9090

func main() {
	logger := log.WithModule("aob-api")

	cmd := &cli.Command{
		Name:                  "aob-api",
		Usage:                 "Serve the Agentic Orchestration Builder control API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
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
				Name:    "lease",
				Usage:   "Session lease backend (redis, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("LEASE_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the lease manager",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "oracle",
				Usage:   "Policy oracle backend (http, allow-all)",
				Value:   "allow-all",
				Sources: cli.EnvVars("ORACLE_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "oracle-url",
				Usage:   "Policy oracle base URL (OPA-shaped HTTP endpoint)",
				Sources: cli.EnvVars("ORACLE_URL"),
			},
			&cli.StringFlag{
				Name:    "oracle-decision-path",
				Usage:   "Policy oracle decision path (e.g. aob/allow)",
				Value:   "aob/allow",
				Sources: cli.EnvVars("ORACLE_DECISION_PATH"),
			},
			&cli.StringFlag{
				Name:    "audit-sink",
				Usage:   "Decision recorder sink (http, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("AUDIT_SINK_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "audit-endpoint",
				Usage:   "Decision recorder HTTP sink endpoint",
				Sources: cli.EnvVars("AUDIT_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "behaviors-config",
				Usage:   "Path to the YAML file wiring node ids to Behavior implementations",
				Sources: cli.EnvVars("BEHAVIORS_CONFIG"),
			},
			&cli.DurationFlag{
				Name:    "lease-ttl",
				Usage:   "Run lease TTL, renewed across the step loop",
				Value:   engine.DefaultLeaseTTL,
				Sources: cli.EnvVars("LEASE_TTL"),
			},
			&cli.IntFlag{
				Name:    "snapshot-interval",
				Usage:   "Write a snapshot every N appended events (<=0 disables)",
				Value:   engine.DefaultSnapshotInterval,
				Sources: cli.EnvVars("SNAPSHOT_INTERVAL"),
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
			logger.InfoContext(ctx, "initializing aob-api")

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

			lm, err := cmdutil.NewLease(command.String("lease"), command.String("redis-url"))
			if err != nil {
				return err
			}

			oc, err := cmdutil.NewOracle(logger, command.String("oracle"), command.String("oracle-url"), command.String("oracle-decision-path"))
			if err != nil {
				return err
			}

			rec, err := cmdutil.NewAuditRecorder(logger, command.String("audit-sink"), command.String("audit-endpoint"))
			if err != nil {
				return err
			}

			d, err := cmdutil.NewDLQ(storeProvider, db)
			if err != nil {
				return err
			}

			specs, err := cmdutil.NewSpecRepository(storeProvider, db)
			if err != nil {
				return err
			}

			runs, err := cmdutil.NewRunIndex(storeProvider, db)
			if err != nil {
				return err
			}

			behaviorRegistry, err := cmdutil.NewBehaviorRegistry(logger, command.String("behaviors-config"))
			if err != nil {
				return err
			}

			tracer, err := otelhelper.NewTracer(ctx, "aob-api")
			if err != nil {
				logger.WarnContext(ctx, "tracing disabled: failed to init tracer provider", "error", err)
				tracer = nil
			}

			eng := engine.New(logger, st, lm, oc, rec, int64(command.Int("snapshot-interval")), command.Duration("lease-ttl"))

			app := api.New(logger, eng, behaviorRegistry, specs, runs, st, d, tracer).App()

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
