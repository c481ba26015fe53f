package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/extractor-service/internal/capture"
	"github.com/user/extractor-service/internal/config"
	"github.com/user/extractor-service/internal/dispatch"
	"github.com/user/extractor-service/internal/queue"
	"github.com/user/extractor-service/internal/storage"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	dispatcher *dispatch.Dispatcher
	reparser   *capture.Reparser
	pgStore    *storage.PostgresStore
	queueConn  *queue.Connection
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, d *dispatch.Dispatcher, rp *capture.Reparser,
	ps *storage.PostgresStore, qc *queue.Connection, l *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		dispatcher: d,
		reparser:   rp,
		pgStore:    ps,
		queueConn:  qc,
		logger:     l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // extraction runs synchronously
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
