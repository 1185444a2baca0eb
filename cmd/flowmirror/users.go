package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowmirror/pkg/cmd"
	"github.com/dukex/flowmirror/pkg/log"
	"github.com/dukex/flowmirror/pkg/models"
	"github.com/dukex/flowmirror/pkg/persistence"
	"github.com/urfave/cli/v3"
)

func usersCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Seed users into the mirror",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add or update a user and optionally link a chat account",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "database-url",
						Usage:    "Mirror database URL (postgres://... or file://...)",
						Required: true,
						Sources:  cli.EnvVars("DATABASE_URL"),
					},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.BoolFlag{Name: "inactive", Usage: "Store the user as inactive"},
					&cli.StringFlag{Name: "provider", Usage: "Chat provider of the linked account, e.g. telegram"},
					&cli.StringFlag{Name: "external-id", Usage: "Account id at the provider"},
					&cli.StringFlag{Name: "display-name", Usage: "Account handle at the provider"},
					&cli.StringFlag{
						Name:    "log-level",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					id := command.Args().First()
					if id == "" {
						return cli.Exit("user id is required", 1)
					}

					p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
					if err != nil {
						return err
					}

					defer func() {
						err := p.Close(ctx)
						if err != nil {
							logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
						}
					}()

					return addUser(ctx, p, userInput{
						ID:          id,
						Username:    command.String("username"),
						Email:       command.String("email"),
						Active:      !command.Bool("inactive"),
						Provider:    command.String("provider"),
						ExternalID:  command.String("external-id"),
						DisplayName: command.String("display-name"),
					})
				},
			},
		},
	}
}

type userInput struct {
	ID          string
	Username    string
	Email       string
	Active      bool
	Provider    string
	ExternalID  string
	DisplayName string
}

func addUser(ctx context.Context, p persistence.Persistence, in userInput) error {
	err := p.Users().SaveUser(ctx, &models.User{
		ID:       in.ID,
		Username: in.Username,
		Email:    in.Email,
		IsActive: in.Active,
	})
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	if in.Provider == "" {
		return nil
	}

	if in.ExternalID == "" {
		return errors.New("--external-id is required with --provider")
	}

	err = p.Users().SaveCredential(ctx, &models.Credential{
		UserID:      in.ID,
		Provider:    in.Provider,
		ExternalID:  in.ExternalID,
		DisplayName: in.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	return nil
}
