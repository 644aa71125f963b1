package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/logging"
	"github.com/mbourse/masi-api/internal/market"
	"github.com/mbourse/masi-api/internal/refresh"
)

// Services are the domain services the HTTP layer reads from.
type Services struct {
	Market  *market.Service
	Refresh *refresh.Service
	Jobs    *job.Service
}

type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// New creates a server. The baseCtx is used as the base context for all
// incoming requests (via BaseContext), so cancelling it stops in-flight
// requests during graceful shutdown.
func New(baseCtx context.Context, port string, svc Services, corsOrigins []string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: newRouter(svc, corsOrigins),
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: logging.Named("server"),
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	return s.srv.Shutdown(ctx)
}
