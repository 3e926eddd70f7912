package api

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/cache"
	"github.com/papercomputeco/blackboard/pkg/logger"
)

// CrewHeader selects the crew store when the crew query parameter is absent.
const CrewHeader = "X-Blackboard-Crew"

// Server is the API server for inspecting and posting to blackboard stores.
type Server struct {
	config     Config
	stores     blackboard.Provider
	logger     *slog.Logger
	efficiency *cache.Efficiency
	app        *fiber.App
}

// NewServer creates a new API server.
// The stores are injected so the same registry can back the MCP server and
// the epoch scheduler.
func NewServer(config Config, stores blackboard.Provider, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:     config,
		stores:     stores,
		logger:     logger.OrNop(log),
		efficiency: &cache.Efficiency{},
		app:        app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/stats", s.withStore(s.handleStats))
	v1.Get("/snapshot", s.withStore(s.handleSnapshot))
	v1.Get("/entries", s.withStore(s.handleQuery))
	v1.Post("/entries", s.withStore(s.handlePost))
	v1.Get("/entries/:id", s.withStore(s.handleGetEntry))
	v1.Delete("/entries/:id", s.withStore(s.handleTombstone))
	v1.Post("/epoch", s.withStore(s.handleAdvanceEpoch))
	v1.Post("/compact", s.withStore(s.handleCompact))
	v1.Get("/verify", s.withStore(s.handleVerify))
	v1.Post("/context", s.withStore(s.handleContext))
	v1.Post("/messages", s.withStore(s.handleMessages))
	v1.Get("/usage", s.handleUsage)
	v1.Post("/usage", s.handleRecordUsage)

	if config.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}
	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s
}

// App exposes the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
