package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/flowmirror/pkg/cmd"
	"github.com/dukex/flowmirror/pkg/log"
	"github.com/urfave/cli/v3"
)

// Exit code of runs that finished with some workflows failed.
const exitPartialFailure = 2

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func backupCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Aliases: []string{"b"},
		Usage:   "Sync every engine workflow into the backups and the mirror",
		Flags:   cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			components, err := cmd.NewComponents(ctx, command, logger, "flowmirror")
			if err != nil {
				return err
			}

			defer func() {
				err := components.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			report, err := components.Services.Sync.Synchronize(ctx)
			if err != nil {
				return err
			}

			err = printJSON(command.Root().Writer, report)
			if err != nil {
				return err
			}

			if err := report.Err(); err != nil {
				return cli.Exit(fmt.Sprintf("backup finished with failures: %v", err), exitPartialFailure)
			}

			return nil
		},
	}
}

func importCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Re-create every backed up workflow on the engine",
		Flags: cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			components, err := cmd.NewComponents(ctx, command, logger, "flowmirror")
			if err != nil {
				return err
			}

			defer func() {
				err := components.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			report, err := components.Services.Importer.ImportAll(ctx)
			if err != nil {
				return err
			}

			err = printJSON(command.Root().Writer, report)
			if err != nil {
				return err
			}

			if err := report.Err(); err != nil {
				return cli.Exit(fmt.Sprintf("import finished with failures: %v", err), exitPartialFailure)
			}

			return nil
		},
	}
}
