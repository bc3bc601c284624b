package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/config"
	"github.com/capitalize-ai/ordering-assistant/internal/handler"
	natsclient "github.com/capitalize-ai/ordering-assistant/internal/nats"
	"github.com/capitalize-ai/ordering-assistant/internal/reconcile"
	"github.com/capitalize-ai/ordering-assistant/internal/service"
	"github.com/capitalize-ai/ordering-assistant/internal/store/gormstore"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
	"github.com/capitalize-ai/ordering-assistant/pkg/tracing"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API backed by Postgres.

Required environment: DATABASE_URL, JWT_SECRET and a language model key.
REDIS_URL makes the inventory reconciliation queue durable; NATS_URL
enables order and session events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, root.LogLevel, false)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting ordering assistant", zap.String("shop_id", cfg.ShopID))

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ordering-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st, err := gormstore.Open(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	err = st.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}

	var queue reconcile.Queue = reconcile.NewMemoryQueue()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		queue = reconcile.NewRedisQueue(rdb, cfg.ShopID)
		log.Info("reconciliation queue backed by redis")
	}

	var (
		events     service.EventPublisher
		natsHealth interface{ IsConnected() bool }
	)
	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()

		streams := natsclient.NewStreamManager(nc)
		if err := streams.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure stream: %w", err)
		}
		events = streams
		natsHealth = nc
	}

	interp, err := newInterpreter(cfg, log)
	if err != nil {
		return fmt.Errorf("create language model client: %w", err)
	}

	eng, err := buildEngine(cfg, st, queue, interp, events, log)
	if err != nil {
		return err
	}

	if _, err := eng.reconciler.Restore(ctx); err != nil {
		return fmt.Errorf("restore queued inventory deltas: %w", err)
	}

	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		eng.reconciler.Run(ctx)
	}()
	if err := eng.cleanup.Start(ctx); err != nil {
		return fmt.Errorf("start cleanup: %w", err)
	}
	defer eng.cleanup.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Assistant:         eng.assistant,
		Health:            handler.NewHealthHandler(st, natsHealth),
		Logger:            log,
		ShopID:            cfg.ShopID,
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		CustomerRateLimit: cfg.CustomerRateLimit,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			stop()
			<-reconcileDone
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	<-reconcileDone

	log.Info("server stopped")
	return nil
}
