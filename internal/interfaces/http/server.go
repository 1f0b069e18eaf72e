// Package http is the thin HTTP adapter over the workflow engine and
// directory service. It only translates requests and error kinds; all
// behavior lives below.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer creates a new HTTP server around the given handlers
func NewServer(config ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		handlers: handlers,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)

	v1 := s.router.Group("/api/v1")
	{
		activities := v1.Group("/activities")
		{
			activities.POST("", s.handlers.CreateActivity)
			activities.GET("", s.handlers.ListActivities)
			activities.GET("/:id", s.handlers.GetActivity)
			activities.POST("/:id/submit", s.handlers.SubmitDraft)
			activities.POST("/:id/cancel", s.handlers.CancelActivity)
			activities.POST("/:id/relaunch", s.handlers.RelaunchActivity)
			activities.POST("/:id/hurryup", s.handlers.HurryUp)
			activities.POST("/:id/task-done", s.handlers.CompleteTask)
		}

		steps := v1.Group("/steps")
		{
			steps.GET("/pending", s.handlers.ListPendingSteps)
			steps.POST("/:id/approve", s.handlers.ApproveStep)
			steps.POST("/:id/reject", s.handlers.RejectStep)
		}

		configs := v1.Group("/configs")
		{
			configs.POST("", s.handlers.CreateTemplate)
			configs.POST("/dsl", s.handlers.CreateTemplateFromDSL)
			configs.GET("", s.handlers.ListTemplates)
			configs.DELETE("/:id", s.handlers.ArchiveTemplate)
		}

		dir := v1.Group("/directory")
		{
			dir.POST("/departments", s.handlers.CreateDepartment)
			dir.GET("/departments", s.handlers.ListDepartments)
			dir.DELETE("/departments/:id", s.handlers.ArchiveDepartment)
			dir.POST("/positions", s.handlers.CreatePosition)
			dir.GET("/positions", s.handlers.ListPositions)
			dir.DELETE("/positions/:id", s.handlers.ArchivePosition)
			dir.POST("/links", s.handlers.Link)
			dir.DELETE("/links", s.handlers.Unlink)
			dir.POST("/profiles", s.handlers.CreateProfile)
			dir.PUT("/profiles/:id/assignment", s.handlers.MoveProfile)
			dir.DELETE("/profiles/:id", s.handlers.ArchiveProfile)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", s.handlers.ListNotifications)
			notifications.POST("/:id/read", s.handlers.MarkNotificationRead)
		}
	}
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("HTTP server starting", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
