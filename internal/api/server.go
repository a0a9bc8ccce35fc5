// Package api wires the Gin HTTP surface: the inbound Claude Messages
// endpoint, health check, admin config reload, and metrics export.
package api

import (
	"time"

	"github.com/claudeproxy/claudeproxy/internal/adapter"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/keysched"
	"github.com/claudeproxy/claudeproxy/internal/logging"
	"github.com/claudeproxy/claudeproxy/internal/router"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server owns the dependencies the HTTP handlers need and produces a wired
// *gin.Engine.
type Server struct {
	Store     *config.Store
	Registry  *adapter.Registry
	Scheduler *keysched.Scheduler
	Router    *router.Router
	startedAt time.Time
}

// New creates a Server with its start time fixed at construction, used for
// the health endpoint's uptime figure.
func New(store *config.Store, registry *adapter.Registry, scheduler *keysched.Scheduler, rtr *router.Router) *Server {
	return &Server{
		Store:     store,
		Registry:  registry,
		Scheduler: scheduler,
		Router:    rtr,
		startedAt: time.Now(),
	}
}

// Engine builds the Gin engine with every route and middleware attached.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(logging.GinLogrusRecovery(), logging.GinLogrusLogger())

	engine.GET(s.healthPath(), s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authorized := engine.Group("/")
	authorized.Use(s.AuthMiddleware())
	authorized.POST("/v1/messages", s.handleMessages)
	authorized.POST("/admin/config/reload", s.handleAdminReload)

	return engine
}

func (s *Server) healthPath() string {
	path := s.Store.Get().HealthCheckPath
	if path == "" {
		return "/health"
	}
	return path
}
