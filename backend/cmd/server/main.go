package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/backend/internal/config"
	"github.com/BioHazard786/Warproom/backend/internal/logging"
	"github.com/BioHazard786/Warproom/backend/internal/presence"
	"github.com/BioHazard786/Warproom/backend/internal/server"
	"github.com/BioHazard786/Warproom/backend/internal/signaling"
)

func main() {
	var opts config.Options
	flag.StringVar(&opts.Addr, "addr", "", "listen address (env RELAY_ADDR or PORT)")
	flag.StringVar(&opts.RedisAddr, "redis", "", "redis address for the room status mirror (env REDIS_ADDR)")
	flag.Parse()

	logger, err := logging.New()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg := config.Load(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := signaling.NewRegistry(logger.Named("registry"))
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()

		pub := presence.NewPublisher(presence.NewRedisStore(rdb, presence.DefaultTTL), logger.Named("presence"))
		registry.SetObserver(pub.Observe)
		go pub.Run(ctx)
		logger.Info("room status mirror enabled", zap.String("redis", cfg.RedisAddr))
	}
	hub := signaling.NewHub(registry, logger.Named("hub"))

	// No write timeout: hijacked websocket connections would inherit it.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(hub, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("relay listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
