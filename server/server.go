package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/rs/cors"
	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/remesas-ve/tasas/pipeline"
	"github.com/remesas-ve/tasas/storage"

	"github.com/remesas-ve/tasas/server/config"
)

// RoutesFn is a callback that receives a router for registering routes
type RoutesFn func(router chi.Router)

// Pipeline is the server's view of the run scheduler:
// on-demand triggers and run status lookups
type Pipeline interface {
	// Trigger enqueues a manual pipeline run.
	// Returns pipeline.ErrRunInProgress if one is already active
	Trigger() (xid.ID, error)

	// Status fetches the report for the given run, if any
	Status(id xid.ID) (pipeline.Report, bool)
}

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type Server struct {
	logger *slog.Logger
	config *config.Config

	storage  storage.Storage
	pipeline Pipeline

	mux *chi.Mux
}

// New creates a new server instance over the rate store and
// the run pipeline
func New(storage storage.Storage, pl Pipeline, opts ...Option) (*Server, error) {
	s := &Server{
		logger:   noopLogger,
		storage:  storage,
		pipeline: pl,
		config:   config.DefaultConfig(),
		mux:      chi.NewMux(),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	// Validate the configuration
	if err := config.ValidateConfig(s.config); err != nil {
		return nil, fmt.Errorf("invalid configuration, %w", err)
	}

	// Set up the CORS middleware
	if s.config.CORSConfig != nil {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSConfig.AllowedOrigins,
			AllowedMethods: s.config.CORSConfig.AllowedMethods,
			AllowedHeaders: s.config.CORSConfig.AllowedHeaders,
		})

		s.mux.Use(corsMiddleware.Handler)
	}

	s.mux.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaOTEL,
		RecoverPanics: true,
		Skip: func(_ *http.Request, respStatus int) bool {
			return respStatus == 404 || respStatus == 405
		},
	}))

	// Register the health check handler
	s.mux.Get("/health", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})

	// Register the rate and run endpoints
	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.TriggerRun)
		r.Get("/runs/{id}", s.RunStatus)

		r.Get("/rates/active", s.ActiveRates)
		r.Get("/rates/{from}/{to}", s.LatestRate)

		r.Get("/sources", s.Sources)
		r.Get("/currencies", s.Currencies)
	})

	return s, nil
}

// Routes calls fn with the server mux so callers can add endpoints
func (s *Server) Routes(fn RoutesFn) {
	if fn == nil {
		return
	}

	fn(s.mux)
}

// Serve serves the rate service
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer s.logger.Info("server shut down")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		s.logger.Info(
			fmt.Sprintf(
				"server started at %s",
				ln.Addr().String(),
			),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		s.logger.Info("server to be shutdown")

		wsCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return server.Shutdown(wsCtx)
	})

	return group.Wait()
}
