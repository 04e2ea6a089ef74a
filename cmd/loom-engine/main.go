package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/loomhq/loom/pkg/cmd"
	"github.com/loomhq/loom/pkg/credentials"
	"github.com/loomhq/loom/pkg/log"
	"github.com/loomhq/loom/pkg/otelhelper"
	"github.com/loomhq/loom/pkg/persistence/redisstore"
	"github.com/loomhq/loom/pkg/status"
	cli "github.com/urfave/cli/v3"
)

const defaultMaxRetries = 3

func main() {
	command := &cli.Command{
		Name:                  "loom-engine",
		EnableShellCompletion: true,
		Usage:                 "Start the engine that executes workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the step ledger and node status cache (falls back to the database when unset)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "encryption-key",
				Usage:    "Hex-encoded 32-byte key for credential encryption",
				Required: true,
				Sources:  cli.EnvVars("ENCRYPTION_KEY"),
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "Whole-run retry budget for retriable failures",
				Value:   defaultMaxRetries,
				Sources: cli.EnvVars("MAX_RETRIES"),
			},
			&cli.DurationFlag{
				Name:    "retry-delay",
				Usage:   "Base pause between run attempts",
				Value:   time.Second,
				Sources: cli.EnvVars("RETRY_DELAY"),
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

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("loom-engine").With("engine_id", engineID)

			logger.InfoContext(ctx, "Initializing Loom Engine")

			tracer, err := otelhelper.NewTracer(ctx, "loom-engine")
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

				return err
			}

			cipher, err := credentials.NewCipherFromHex(command.String("encryption-key"))
			if err != nil {
				return err
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			ledger := persistence.StepLedger()

			var lastKnown status.LastKnownStore

			if redisURL := command.String("redis-url"); redisURL != "" {
				client, err := redisstore.NewClient(ctx, redisURL)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to connect to redis", "error", err)

					return err
				}
				defer func() {
					if err := client.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()

				ledger = redisstore.NewStepLedger(client)
				lastKnown = redisstore.NewLastKnownStore(client)
			}

			credentialStore := credentials.NewStore(persistence.CredentialRepository(), cipher)
			registry := cmd.NewRegistry(logger, credentialStore)

			manager := NewEngineManager(
				engineID,
				persistence,
				eventBus,
				logger,
				registry,
				ledger,
				lastKnown,
				tracer,
				command.Int("max-retries"),
				command.Duration("retry-delay"),
			)

			err = manager.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start engine", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
