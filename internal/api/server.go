package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.uber.org/zap"
)

// Server wraps the Fiber application serving the REST API
type Server struct {
	logger   *zap.Logger
	handlers *Handlers
	addr     string
	app      *fiber.App
}

// NewServer creates the HTTP server and registers all routes
func NewServer(handlers *Handlers, addr string, log *zap.Logger) *Server {
	s := &Server{
		logger:   log.Named("http-server"),
		handlers: handlers,
		addr:     addr,
	}
	s.app = s.buildApp()
	return s
}

// App returns the underlying Fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) buildApp() *fiber.App {
	app := fiber.New()

	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	automations := app.Group("/api/automations")
	automations.Get("/", s.handlers.ListAutomations)
	automations.Post("/", s.handlers.CreateAutomation)
	automations.Get("/:id", s.handlers.GetAutomation)
	automations.Patch("/:id", s.handlers.UpdateAutomation)
	automations.Delete("/:id", s.handlers.DeleteAutomation)
	automations.Post("/:id/execute", s.handlers.ExecuteAutomation)
	automations.Get("/:id/executions", s.handlers.ListAutomationExecutions)

	executions := app.Group("/api/executions")
	executions.Get("/", s.handlers.ListExecutions)
	executions.Get("/:id", s.handlers.GetExecution)

	limits := app.Group("/api/limits")
	limits.Get("/", s.handlers.GetLimitStatus)
	limits.Delete("/:identifier", s.handlers.ResetLimit)

	return app
}

// Start begins serving and blocks until the listener stops
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.Shutdown()
}
