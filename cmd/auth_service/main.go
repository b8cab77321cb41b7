package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token_auth_service/internal/auth"
	"token_auth_service/internal/bus"
	"token_auth_service/internal/config"
	"token_auth_service/internal/handler"
	"token_auth_service/internal/health"
	"token_auth_service/internal/metrics"
	"token_auth_service/internal/service"
	"token_auth_service/internal/storage"

	"github.com/gin-gonic/gin"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to yaml config")

	flag.Parse()

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("starting auth service", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lgr); err != nil {
		lgr.Error("auth service stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. Everything it opens is closed before it
// returns, including on startup failures.
func run(ctx context.Context, cfg *config.Config, lgr *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	//INIT DB
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer st.Close()

	//INIT SERVICE
	keys := auth.Keys{
		AccessSecret:  []byte(cfg.Tokens.AccessSecret),
		RefreshSecret: []byte(cfg.Tokens.RefreshSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	}

	registry := metrics.NewRegistry()
	srvc := service.NewAuthService(
		st,
		auth.NewHasher(cfg.Tokens.BcryptCost),
		auth.NewIssuer(keys, time.Now),
		auth.NewVerifier(keys, time.Now),
		lgr,
		service.NewMetrics(registry),
	)

	//INIT BUS
	if cfg.Kafka.Enabled {
		shutdownBus, err := startBus(ctx, cfg, srvc, lgr)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer shutdownBus()
	}

	//INIT SERVER
	if cfg.Env == envProd {
		gin.SetMode(gin.ReleaseMode)
	}

	healthManager := health.NewManager(true, st)

	router := gin.New()
	router.Use(handler.RequestID(), handler.Logger(lgr), handler.Recovery(lgr))
	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(healthManager))
	router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler(registry)))

	handler.NewHandler(srvc, lgr, handler.BearerToken).InitRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		lgr.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	lgr.Info("shutting down")
	healthManager.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lgr.Error("http server shutdown failed", slog.Any("error", err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

var openStorage = setupStorage

func setupStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage == config.StorageMemory {
		return storage.NewMemoryStorage(), nil
	}

	if cfg.DB.Migrate {
		if err := storage.Migrate(ctx, cfg.DB.DbURL); err != nil {
			return nil, err
		}
	}

	return storage.NewPostgresStorage(ctx, cfg.DB.DbURL)
}

// startBus serves the request topic until ctx is cancelled. The returned
// func closes the consumer and producer.
func startBus(ctx context.Context, cfg *config.Config, srvc service.Service, lgr *slog.Logger) (func(), error) {
	producer, err := bus.NewSyncProducer(cfg.Kafka.Brokers, lgr)
	if err != nil {
		return nil, err
	}

	consumer, err := bus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, lgr)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}

	msgHandler := bus.NewAuthHandler(srvc, producer, cfg.Kafka.ReplyTopic, lgr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		lgr.Info("kafka consumer started", slog.String("topic", cfg.Kafka.RequestTopic))
		if err := consumer.Consume(ctx, []string{cfg.Kafka.RequestTopic}, msgHandler); err != nil && !errors.Is(err, context.Canceled) {
			lgr.Error("kafka consumer stopped", slog.Any("error", err))
		}
	}()

	return func() {
		if err := consumer.Close(); err != nil {
			lgr.Error("failed to close kafka consumer", slog.Any("error", err))
		}
		<-done
		if err := producer.Close(); err != nil {
			lgr.Error("failed to close kafka producer", slog.Any("error", err))
		}
	}, nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
