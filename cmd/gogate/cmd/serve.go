package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/db/bunx"
	"github.com/MrEthical07/goGate/internal/mail"
	"github.com/MrEthical07/goGate/internal/migrations"
	"github.com/MrEthical07/goGate/internal/repository"
	"github.com/MrEthical07/goGate/internal/server"
	promexport "github.com/MrEthical07/goGate/metrics/export/prometheus"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gogate API server",
	Long: `Starts the HTTP server with the auth endpoints, the role-gated API,
/healthz and /metrics. Pending migrations are applied on start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		logger.InfoContext(ctx, "connected to database", "type", string(bunx.DetectDatabaseType(cfg.DatabaseURL)))

		if _, err := migrations.Up(ctx, db, logger); err != nil {
			return err
		}

		users := repository.NewBunUserRepository(db)

		rdb, stopRedis, err := openRedis(cfg.RedisURL, devMode)
		if err != nil {
			return err
		}
		defer stopRedis()

		engine, err := buildEngine(rdb, users)
		if err != nil {
			return err
		}
		defer engine.Close()

		var metricsHandler http.Handler
		if cfg.Metrics.Enabled {
			exporter, err := promexport.NewExporter(engine,
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			if err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}
			metricsHandler = exporter.Handler()
		}

		corsOpts := server.DefaultCORSOptions(cfg.AllowedOrigins)
		router, err := server.NewRouter(server.RouterOptions{
			Engine:      engine,
			Users:       users,
			Logger:      logger,
			BaseURL:     cfg.BaseURL,
			CORSOptions: &corsOpts,
			Metrics:     metricsHandler,
			HealthChecks: map[string]server.HealthCheck{
				"redis":    engine.Ping,
				"database": users.Ping,
			},
		})
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.ServerAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr, "base_url", cfg.BaseURL, "dev", devMode)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			logger.Info("server stopped")
			return nil
		}
	},
}

// openRedis connects to redisURL, or in dev mode starts an in-process
// Redis that lives until the returned stop function is called.
func openRedis(redisURL string, dev bool) (redis.UniversalClient, func(), error) {
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded redis: %w", err)
		}
		logger.Warn("using embedded redis, sessions are lost on exit", "addr", mr.Addr())
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return client, func() { _ = client.Close() }, nil
}

func buildEngine(rdb redis.UniversalClient, users goGate.UserStore) (*goGate.Engine, error) {
	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	var mailOpts []mail.Option
	if devMode {
		mailOpts = append(mailOpts, mail.WithLinks())
	}

	b := goGate.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mail.NewLogMailer(logger, mailOpts...)).
		WithLogger(logger).
		WithPasswordResetHook(mail.ResetLogger(logger))
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goGate.NewSlogSink(logger.With("component", "audit")))
	}

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build auth engine: %w", err)
	}
	return engine, nil
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Use an embedded in-memory Redis instead of REDIS_URL and log password reset links")
	rootCmd.AddCommand(serveCmd)
}
