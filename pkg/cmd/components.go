package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowmirror/pkg/backup"
	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/eventbus"
	"github.com/dukex/flowmirror/pkg/otelhelper"
	"github.com/dukex/flowmirror/pkg/persistence"
	"github.com/dukex/flowmirror/pkg/services"
	"github.com/dukex/flowmirror/pkg/web"
	"github.com/urfave/cli/v3"
)

// Components is everything a binary needs, built once from the flags. The
// engine client is shared by every service.
type Components struct {
	Engine      *engine.Client
	Store       *backup.Store
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Services    web.Services

	closers []func(ctx context.Context) error
}

func NewComponents(ctx context.Context, command *cli.Command, logger *slog.Logger, name string) (*Components, error) {
	c := &Components{}

	err := c.build(ctx, command, logger, name)
	if err != nil {
		closeErr := c.Close(ctx)

		return nil, errors.Join(err, closeErr)
	}

	return c, nil
}

func (c *Components) build(ctx context.Context, command *cli.Command, logger *slog.Logger, name string) error {
	if command.Bool("otel-enabled") {
		tp, err := otelhelper.NewTracerProvider(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		c.closers = append(c.closers, tp.Shutdown)
	}

	client, err := engine.NewClient(engine.Config{
		APIURL:         command.String("engine-url"),
		APIKey:         command.String("engine-api-key"),
		WebhookURL:     command.String("engine-webhook-url"),
		Timeout:        command.Duration("engine-timeout"),
		TriggerTimeout: command.Duration("trigger-timeout"),
	}, logger)
	if err != nil {
		return err
	}

	c.Engine = client

	c.Store, err = backup.NewStore(logger, command.String("backup-dir"), command.Int("backup-generations"))
	if err != nil {
		return err
	}

	c.Persistence, err = NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	c.closers = append(c.closers, c.Persistence.Close)

	c.EventBus, err = NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	c.closers = append(c.closers, func(context.Context) error { return c.EventBus.Close() })

	locker, closeLocker, err := NewLocker(ctx, logger, command.String("lock-url"))
	if err != nil {
		return err
	}

	c.closers = append(c.closers, func(context.Context) error { return closeLocker() })

	importer, err := services.NewImporter(client, c.Store, logger)
	if err != nil {
		return err
	}

	c.Services = web.Services{
		Listing: services.NewListing(c.Persistence),
		Sync: services.NewSync(client, c.Store, c.Persistence, locker, c.EventBus, logger, services.SyncConfig{
			LockWaitTimeout: command.Duration("sync-lock-wait"),
		}),
		Importer:       importer,
		Dispatch:       services.NewDispatch(client, c.EventBus, logger),
		Activation:     services.NewActivation(client, c.Persistence, c.EventBus, logger),
		Overlays:       services.NewOverlays(c.Persistence),
		ServiceContext: services.NewServiceContext(c.Persistence),
	}

	return nil
}

// Close releases everything in reverse order of construction.
func (c *Components) Close(ctx context.Context) error {
	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}

	c.closers = nil

	return errors.Join(errs...)
}
