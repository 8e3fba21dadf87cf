package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Server runs the HTTP front end until its context is canceled. It mounts
// the API routes, the Prometheus endpoint and CORS, and shuts down
// gracefully.
type Server struct {
	logger *zap.Logger
	srv    *http.Server
}

// NewServer builds the HTTP server around the given handler.
func NewServer(addr string, handler *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/", handler.Router())
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		logger: logger.Named("http"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           cors.Default().Handler(mux),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
		},
	}
}

// Run serves until ctx is canceled, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info("shutting down the http server")
		if err := s.srv.Shutdown(context.Background()); err != nil {
			s.logger.Error("failed to shutdown http server", zap.Error(err))
		}
	}()

	s.logger.Info("starting http server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return ctx.Err()
}
