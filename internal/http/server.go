// README: API gateway; serves the router until the context is cancelled.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"rideshare/internal/http/handlers"
	"rideshare/internal/infra"
	"rideshare/internal/logging"
	"rideshare/internal/modules/account"
	"rideshare/internal/modules/feed"
	"rideshare/internal/modules/points"
	"rideshare/internal/modules/ride"
)

const shutdownTimeout = 10 * time.Second

// ServerDeps wires the HTTP layer. Accounts, Feed and Estimator are optional.
type ServerDeps struct {
	Rides     *ride.Service
	Accounts  *account.Service
	Points    *points.Service
	Feed      *feed.Service
	Verifier  infra.TokenVerifier
	Estimator handlers.TravelEstimator
	Location  *time.Location
	Logger    *logrus.Logger
}

type Server struct {
	srv *http.Server
	log *logrus.Entry
}

func NewServer(addr string, deps ServerDeps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logging.Module(deps.Logger, "http"),
	}
}

// Run blocks until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
