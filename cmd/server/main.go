package main

import (
	"context"
	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/config"
	"ctchen222/tictactoe-solo/internal/db"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/hub"
	"ctchen222/tictactoe-solo/internal/logger"
	"ctchen222/tictactoe-solo/internal/server"
	"ctchen222/tictactoe-solo/internal/telemetry"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	conf := initConfig()
	log := logger.Init(conf.LogLevel)

	if err := run(conf, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// initialize config.
func initConfig() *config.Config {
	baseDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get current directory: %v\n", err)
		os.Exit(1)
	}

	conf, err := config.Load(filepath.Join(baseDir, "config.yml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return conf
}

func run(conf *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, conf.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Error("error shutting down telemetry", "error", err)
		}
	}()

	bus, closeBus, err := newBus(ctx, conf.Redis, log)
	if err != nil {
		return err
	}
	defer closeBus()

	// Create hub
	h := hub.NewHub(hub.Config{
		ComputerDelay:  conf.Game.ComputerDelay,
		Seed:           conf.Game.Seed,
		IdleTimeout:    conf.Game.IdleTimeout,
		ReapInterval:   conf.Game.ReapInterval,
		Forward:        conf.Redis.Enabled,
		ForwardTimeout: conf.Game.ForwardTimeout,
	}, bus, log)
	hubDone := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(hubDone)
	}()

	// Create services
	tokens, err := service.NewTokenIssuer(conf.Auth.JWTSecret, conf.Auth.TokenTTL)
	if err != nil {
		return err
	}
	if conf.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, session tokens will not survive a restart")
	}
	sessions := service.NewSessionService(h, tokens)

	// Create the Gin-based server
	if conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.NewServer(server.Config{
		Sessions: sessions,
		Tokens:   tokens,
		Bus:      bus,
		Logger:   log,
	})

	httpServer := &http.Server{
		Addr:              conf.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server started", "http.addr", conf.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-hubDone
			return fmt.Errorf("listen and serve: %w", err)
		}
	}

	log.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	<-hubDone

	log.Info("server exiting")
	return nil
}

// newBus returns the Redis bus when enabled, else an in-process one.
func newBus(ctx context.Context, conf config.Redis, log *slog.Logger) (events.Bus, func(), error) {
	if !conf.Enabled {
		bus := events.NewMemoryBus()
		return bus, func() { _ = bus.Close() }, nil
	}

	rdb, err := db.NewRedisClient(ctx, conf.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	log.Info("using redis event bus", "redis.addr", conf.Addr)

	return events.NewRedisBus(rdb), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}, nil
}
