// Package main provides the flowmirror API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/flowmirror/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// Room for the multipart envelope around the largest accepted upload.
const formOverhead = 1 << 20

type API struct {
	logger        *slog.Logger
	services      web.Services
	middleware    *web.Middleware
	maxUploadSize int64
}

func NewAPI(
	logger *slog.Logger,
	services web.Services,
	middleware *web.Middleware,
	maxUploadSize int64,
) *API {
	if maxUploadSize <= 0 {
		maxUploadSize = web.DefaultMaxUploadSize
	}

	return &API{
		logger:        logger,
		services:      services,
		middleware:    middleware,
		maxUploadSize: maxUploadSize,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.services, newValidator(), a.logger, a.maxUploadSize)

	app := fiber.New(fiber.Config{
		BodyLimit: int(a.maxUploadSize + formOverhead),
	})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.services.Listing.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowmirror API")
	})

	web.Register(app, handlers, a.middleware)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
