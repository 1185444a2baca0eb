// Package main provides the flowmirror admin CLI.
package main

import (
	"context"
	"os"

	"github.com/dukex/flowmirror/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("cli")

	command := &cli.Command{
		Name:                  "flowmirror",
		Usage:                 "Back up, restore and seed the workflow mirror",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			backupCommand(logger),
			importCommand(logger),
			usersCommand(logger),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
