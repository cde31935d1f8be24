// Package statusapi serves the agent's local status endpoint: a small
// read-only view of the session and deduplication state, plus a wake
// trigger for out-of-band session validation.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/config"
	"github.com/hdjv-envi/wastelog/pkg/dedup"
	"github.com/hdjv-envi/wastelog/pkg/session"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the status API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.StatusAPIConfig
	sessions   session.Manager
	dedup      dedup.Deduplicator
	httpServer *http.Server
}

// NewServer creates a new status API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.StatusAPIConfig,
	sessions session.Manager,
	deduper dedup.Deduplicator,
) Server {
	return &server{
		log:      log.WithField("component", "statusapi"),
		cfg:      cfg,
		sessions: sessions,
		dedup:    deduper,
	}
}

// Start begins serving the status API.
func (s *server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("listen", s.cfg.Listen).Info("Status API listening")

		if err := s.httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Status API server failed")
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}
