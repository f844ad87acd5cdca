// Package api exposes the HTTP surface: conversation initiation, health, and
// conversation lookup.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/heraldhq/herald/pkg/database"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/services"
	"github.com/heraldhq/herald/pkg/state"
)

// Server is the HTTP server for the ingress router.
type Server struct {
	initiation    *services.InitiationService
	conversations state.Store
	db            *database.Client
	pool          *queue.WorkerPool
	httpServer    *http.Server
}

// NewServer creates the API server.
func NewServer(initiation *services.InitiationService, conversations state.Store, db *database.Client, pool *queue.WorkerPool) *Server {
	return &Server{
		initiation:    initiation,
		conversations: conversations,
		db:            db,
		pool:          pool,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(securityHeaders())
	router.Use(corsHeaders())

	router.POST("/initiate-conversation", s.InitiateConversation)
	router.GET("/health", s.GetHealth)
	router.GET("/conversations/:conversation_id", s.GetConversation)

	return router
}

// Run starts the HTTP server on the given port. Blocks until the server
// stops.
func (s *Server) Run(port string) error {
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP server listening", "port", port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
