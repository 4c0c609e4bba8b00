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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/remesas-ve/tasas/cmd/env"
	"github.com/remesas-ve/tasas/pipeline"
	"github.com/remesas-ve/tasas/runlock"
	"github.com/remesas-ve/tasas/server"
	"github.com/remesas-ve/tasas/storage"
	"github.com/remesas-ve/tasas/storage/sql"
)

type serveSQLCfg struct {
	rootCfg *serveCfg
}

// newServeSQLCmd creates the serve sql command
func newServeSQLCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveSQLCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("sql", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "sql",
		ShortUsage: "serve sql [flags]",
		LongHelp:   "Serves the tasas backend, using an SQL datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

// exec executes the server serve command
func (c *serveSQLCfg) exec(ctx context.Context, _ []string) error {
	// Read the configurations, if any
	if err := c.rootCfg.load(); err != nil {
		return fmt.Errorf("unable to load configuration, %w", err)
	}

	// Create a new logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	// DB
	dsn := os.Getenv(env.Prefix + env.DBURLSuffix)
	if dsn == "" {
		return fmt.Errorf("missing %s", env.Prefix+env.DBURLSuffix)
	}

	// Open DB connection
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("unable to open DB connection: %w", err)
	}

	defer func() {
		closeCtx, cancelFn := context.WithTimeout(ctx, time.Second*5)
		defer cancelFn()

		if err = conn.Close(closeCtx); err != nil {
			logger.Error(
				"unable to gracefully close DB connection",
				"err", err,
			)
		}
	}()

	// Check DB reachability
	pingCtx, cancelPing := context.WithTimeout(ctx, time.Second*5)
	defer cancelPing()

	if err = conn.Ping(pingCtx); err != nil {
		return fmt.Errorf("unable to reach DB (ping): %w", err)
	}

	logger.Info("DB ping success")

	// Redis, for the distributed run lock
	redisURL := os.Getenv(env.Prefix + env.RedisURLSuffix)
	if redisURL == "" {
		return fmt.Errorf("missing %s", env.Prefix+env.RedisURLSuffix)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("unable to parse redis URL: %w", err)
	}

	redisClient := redis.NewClient(redisOpts)

	defer func() {
		if err = redisClient.Close(); err != nil {
			logger.Error(
				"unable to gracefully close redis connection",
				"err", err,
			)
		}
	}()

	if err = redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("unable to reach redis (ping): %w", err)
	}

	logger.Info("redis ping success")

	// Create an SQL store
	store := sql.NewStorage(conn)

	// Set up the run metrics
	registry := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(registry)

	// Create the scrape pipeline
	orchestrator := pipeline.NewOrchestrator(
		storage.NewGateway(store),
		c.rootCfg.pipeline,
		defaultAdapters(c.rootCfg.pipeline),
		pipeline.WithOrchestratorLogger(logger),
		pipeline.WithMetrics(metrics),
	)

	scheduler := pipeline.NewScheduler(
		orchestrator,
		runlock.NewRedisLock(redisClient, ""),
		c.rootCfg.pipeline,
		pipeline.WithSchedulerLogger(logger),
	)

	// Create the server instance
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
