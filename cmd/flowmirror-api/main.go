package main

import (
	"context"
	"os"

	"github.com/dukex/flowmirror/pkg/auth"
	"github.com/dukex/flowmirror/pkg/cmd"
	"github.com/dukex/flowmirror/pkg/log"
	"github.com/dukex/flowmirror/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func apiFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "service-key",
			Usage:   "Shared secret the engine presents on service-context calls",
			Sources: cli.EnvVars("SERVICE_KEY"),
		},
		&cli.StringFlag{
			Name:    "oidc-issuer",
			Usage:   "OpenID Connect issuer of end-user tokens",
			Sources: cli.EnvVars("OIDC_ISSUER"),
		},
		&cli.StringFlag{
			Name:    "oidc-audience",
			Usage:   "Expected audience of end-user tokens",
			Sources: cli.EnvVars("OIDC_AUDIENCE"),
		},
		&cli.StringFlag{
			Name:    "admin-role",
			Usage:   "Role claim granting admin routes",
			Value:   auth.DefaultAdminRole,
			Sources: cli.EnvVars("ADMIN_ROLE"),
		},
		&cli.Int64Flag{
			Name:    "max-upload-size",
			Usage:   "Largest file accepted on execute, in bytes",
			Value:   web.DefaultMaxUploadSize,
			Sources: cli.EnvVars("MAX_UPLOAD_SIZE"),
		},
	}, cmd.CommonFlags()...)
}

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowmirror-api",
		Usage:                 "Serve the workflow mirror, dispatch and service-context API",
		EnableShellCompletion: true,
		Flags:                 apiFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing flowmirror API")

			components, err := cmd.NewComponents(ctx, command, logger, "flowmirror-api")
			if err != nil {
				return err
			}

			defer func() {
				err := components.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			var authenticator auth.Authenticator

			if issuer := command.String("oidc-issuer"); issuer != "" {
				authenticator, err = auth.NewOIDC(ctx, issuer, command.String("oidc-audience"), command.String("admin-role"))
				if err != nil {
					return err
				}
			} else {
				logger.WarnContext(ctx, "No OIDC issuer configured, end-user routes will refuse every request")
			}

			serviceKey := auth.NewServiceKey(command.String("service-key"))
			if !serviceKey.Configured() {
				logger.WarnContext(ctx, "No service key configured, service-context calls will be refused")
			}

			api := NewAPI(
				logger,
				components.Services,
				web.NewMiddleware(authenticator, serviceKey),
				command.Int64("max-upload-size"),
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
