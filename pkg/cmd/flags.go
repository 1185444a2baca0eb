package cmd

import (
	"time"

	"github.com/dukex/flowmirror/pkg/backup"
	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/urfave/cli/v3"
)

// CommonFlags are shared by the API server and the admin CLI.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Mirror database URL (postgres://... or file://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "backup-dir",
			Usage:   "Directory holding workflow backups",
			Value:   "./backups",
			Sources: cli.EnvVars("BACKUP_DIR"),
		},
		&cli.IntFlag{
			Name:    "backup-generations",
			Usage:   "Number of previous versions kept per workflow",
			Value:   backup.DefaultGenerations,
			Sources: cli.EnvVars("BACKUP_GENERATIONS"),
		},
		&cli.StringFlag{
			Name:     "engine-url",
			Usage:    "Base URL of the workflow engine",
			Required: true,
			Sources:  cli.EnvVars("ENGINE_URL"),
		},
		&cli.StringFlag{
			Name:    "engine-api-key",
			Usage:   "API key for the workflow engine",
			Sources: cli.EnvVars("ENGINE_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "engine-webhook-url",
			Usage:   "Base URL for webhook triggers (defaults to --engine-url)",
			Sources: cli.EnvVars("ENGINE_WEBHOOK_URL"),
		},
		&cli.DurationFlag{
			Name:    "engine-timeout",
			Usage:   "Timeout of workflow engine API calls",
			Value:   engine.DefaultTimeout,
			Sources: cli.EnvVars("ENGINE_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "trigger-timeout",
			Usage:   "Timeout of workflow executions",
			Value:   engine.DefaultTriggerTimeout,
			Sources: cli.EnvVars("TRIGGER_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "lock-url",
			Usage:   "Sync lock backend (empty for in-process, redis://...)",
			Sources: cli.EnvVars("LOCK_URL"),
		},
		&cli.DurationFlag{
			Name:    "sync-lock-wait",
			Usage:   "How long a sync waits for a sync already running",
			Value:   5 * time.Second,
			Sources: cli.EnvVars("SYNC_LOCK_WAIT"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}
