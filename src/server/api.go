package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trading-data-viewer/src/config"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/service"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config  *config.Config
	Logger  *logger.Logger
	Service *service.DataService

	engine *gin.Engine
	http   *http.Server
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *config.Config, log *logger.Logger, svc *service.DataService) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:  cfg,
		Logger:  log.Named("server"),
		Service: svc,
		engine:  gin.Default(),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/instruments", s.getInstruments)
	s.engine.GET("/api/data/:table", s.getData)
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/health", s.getHealth)

	// Saved drawing sets
	s.engine.GET("/api/drawings", s.listDrawings)
	s.engine.POST("/api/drawings", s.saveDrawing)
	s.engine.GET("/api/drawings/:id", s.getDrawing)
	s.engine.DELETE("/api/drawings/:id", s.deleteDrawing)

	// File exports
	s.engine.GET("/download/:table", s.downloadData)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// -----------------------------------------------------------------------------

// Stop drains in-flight requests and shuts the listener down.
func (s *APIServer) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.Logger.Info("Stopping server")
	return s.http.Shutdown(ctx)
}
