// Package web serves the operator dashboard: live status and events over
// websockets, a small JSON API and Prometheus metrics.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-sculpture/pkg/animation"
	"github.com/teslashibe/go-sculpture/pkg/hub"
	"github.com/teslashibe/go-sculpture/pkg/sculpture"
	"github.com/teslashibe/go-sculpture/pkg/telemetry"
)

//go:embed static
var staticFiles embed.FS

// Config controls the dashboard.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// StatusEvery broadcasts a status frame every N ticks.
	StatusEvery int `yaml:"status_every"`
}

// DefaultConfig serves on :8080 and pushes status ten times a second at
// the default 50Hz loop.
func DefaultConfig() Config {
	return Config{Enabled: true, Addr: ":8080", StatusEvery: 5}
}

// StatusSource is the read side of the controller.
type StatusSource interface {
	Snapshot() sculpture.Snapshot
	Events(n int) []sculpture.Event
	Profiles() animation.ProfileTable
}

// TelemetrySource provides rolling sensor statistics.
type TelemetrySource interface {
	Summary() telemetry.Summary
}

// CommandSink accepts command lines for the control loop.
type CommandSink interface {
	Push(line string) bool
}

// Deps are the components the dashboard reads from and writes to. Only
// Status is required.
type Deps struct {
	Status    StatusSource
	Telemetry TelemetrySource
	Commands  CommandSink
	Metrics   http.Handler
	Logger    *slog.Logger
}

// Server is the dashboard. It also implements sculpture.Observer to mirror
// controller activity to websocket clients.
type Server struct {
	app    *fiber.App
	cfg    Config
	deps   Deps
	logger *slog.Logger

	statusHub *hub.Hub
	eventHub  *hub.Hub

	ticks atomic.Uint64
}

// NewServer builds the fiber app and routes.
func NewServer(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = DefaultConfig().StatusEvery
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    deps.Logger,
		statusHub: hub.New("status", deps.Logger),
		eventHub:  hub.New("events", deps.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Sculpture Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Get("/profiles", s.handleProfiles)
	api.Get("/telemetry", s.handleTelemetry)
	api.Post("/command", s.handleCommand)

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	static, _ := fs.Sub(staticFiles, "static")
	app.Use("/", filesystem.New(filesystem.Config{Root: http.FS(static)}))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// EventHub returns the hub carrying transitions and commands.
func (s *Server) EventHub() *hub.Hub { return s.eventHub }
