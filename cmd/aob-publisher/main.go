// Command aob-publisher drains the transactional outbox (C3, §4.3) into a
// message bus, one leader at a time arbitrated by the Session Lease
// Manager. It is the at-least-once delivery boundary between the
// Execution Engine's event log and the outside world, and mirrors
// operion/cmd/operion-worker's continuously-running-process CLI layout.
package main

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/dukex/aob/internal/cmdutil"
	"github.com/dukex/aob/internal/outbox"
	"github.com/dukex/aob/internal/store/postgres"
	"github.com/dukex/aob/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("aob-publisher")

	cmd := &cli.Command{
		Name:                  "aob-publisher",
		Usage:                 "Drain the AOB transactional outbox into a message bus",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "bus",
				Usage:   "Outbox bus backend (kafka-watermill, kafka-raw, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("BUS_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "kafka-topic",
				Usage:   "Kafka topic events are published to",
				Value:   "aob.events",
				Sources: cli.EnvVars("KAFKA_TOPIC"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Outbox rows scanned per drain iteration",
				Value:   outbox.DefaultBatchSize,
				Sources: cli.EnvVars("OUTBOX_BATCH_SIZE"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Publish attempts before an entry is quarantined to the DLQ",
				Value:   outbox.DefaultMaxAttempts,
				Sources: cli.EnvVars("OUTBOX_MAX_ATTEMPTS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Sleep between scans when the outbox is empty",
				Value:   outbox.DefaultPollInterval,
				Sources: cli.EnvVars("OUTBOX_POLL_INTERVAL"),
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
			logger.InfoContext(ctx, "initializing aob-publisher")

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

			d, err := cmdutil.NewDLQ(storeProvider, db)
			if err != nil {
				return err
			}

			var brokers []string
			if raw := command.String("kafka-brokers"); raw != "" {
				brokers = strings.Split(raw, ",")
			}

			bus, closeBus, err := cmdutil.NewBus(logger, command.String("bus"), command.String("kafka-topic"), brokers)
			if err != nil {
				return err
			}

			defer func() {
				if err := closeBus(); err != nil {
					logger.ErrorContext(ctx, "failed to close bus", "error", err)
				}
			}()

			pub := outbox.New(logger, st, bus, d, lm)
			pub.BatchSize = command.Int("batch-size")
			pub.MaxAttempts = command.Int("max-attempts")
			pub.PollInterval = command.Duration("poll-interval")

			logger.InfoContext(ctx, "aob-publisher draining outbox", "bus", command.String("bus"))

			return pub.Run(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
