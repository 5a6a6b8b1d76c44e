// Package main provides the escalation sweep daemon for approval workflows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/staffly/approvalflow/pkg/cmd"
	"github.com/staffly/approvalflow/pkg/escalation"
	"github.com/staffly/approvalflow/pkg/log"
	"github.com/staffly/approvalflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

// Markers older than this belong to instances that finished long ago.
const trackerTTL = 30 * 24 * time.Hour

func main() {
	logger := log.WithModule("escalator")

	command := &cli.Command{
		Name:                  "approvals-escalator",
		Usage:                 "Emit escalation events for approval steps waiting past their thresholds",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron expression for the escalation sweep",
				Value:   escalation.DefaultSweepSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the shared escalation tracker (empty uses in-memory tracking)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				Sources: cli.EnvVars("REDIS_DB"),
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

			logger.InfoContext(ctx, "Initializing Approvalflow escalator")

			_, err := otelhelper.NewTracer(ctx, "approvals-escalator")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracker, err := newTracker(ctx, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := tracker.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close tracker", "error", err)
				}
			}()

			scheduler := escalation.NewScheduler(
				persistence.InstanceRepository(),
				eventBus,
				tracker,
				logger,
				command.String("sweep-schedule"),
			)

			err = scheduler.Start(ctx)
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			<-sigCtx.Done()

			return scheduler.Stop(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func newTracker(ctx context.Context, command *cli.Command) (escalation.Tracker, error) {
	addr := command.String("redis-addr")
	if addr == "" {
		return escalation.NewMemoryTracker(), nil
	}

	return escalation.NewRedisTracker(ctx, addr, command.String("redis-password"), command.Int("redis-db"), trackerTTL)
}
