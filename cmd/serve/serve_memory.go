package serve

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/remesas-ve/tasas/cmd/env"
	"github.com/remesas-ve/tasas/pipeline"
	"github.com/remesas-ve/tasas/runlock"
	"github.com/remesas-ve/tasas/server"
	"github.com/remesas-ve/tasas/storage"
	"github.com/remesas-ve/tasas/storage/memory"
)

type serveMemoryCfg struct {
	rootCfg *serveCfg
}

// newServeMemoryCmd creates the serve memory command.
func newServeMemoryCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveMemoryCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("memory", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "memory",
		ShortUsage: "serve memory [flags]",
		LongHelp:   "Serves the tasas backend, using an in-memory datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveMemoryCfg) exec(ctx context.Context, _ []string) error {
	// Read the configurations, if any
	if err := c.rootCfg.load(); err != nil {
		return fmt.Errorf("unable to load configuration, %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	// Create an in-memory store
	store := memory.NewStorage()

	// Set up the run metrics
	registry := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(registry)

	// Create the scrape pipeline, guarded by an in-process lock
	orchestrator := pipeline.NewOrchestrator(
		storage.NewGateway(store),
		c.rootCfg.pipeline,
		defaultAdapters(c.rootCfg.pipeline),
		pipeline.WithOrchestratorLogger(logger),
		pipeline.WithMetrics(metrics),
	)

	scheduler := pipeline.NewScheduler(
		orchestrator,
		runlock.NewMemoryLock(),
		c.rootCfg.pipeline,
		pipeline.WithSchedulerLogger(logger),
	)

	s, err := server.New(
		store,
		scheduler,
		server.WithLogger(logger),
		server.WithConfig(c.rootCfg.config),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	s.Routes(func(router chi.Router) {
		router.Method(
			http.MethodGet,
			"/metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		)
	})

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	// Start the HTTP server
	group.Go(func() error {
		return s.Serve(gCtx)
	})

	// Start the scrape pipeline
	group.Go(func() error {
		return scheduler.Start(gCtx)
	})

	return group.Wait()
}
