package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/live-gateway/ws"
	"github.com/radieske/story-bet-platform/internal/shared/cache"
	"github.com/radieske/story-bet-platform/internal/shared/config"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/internal/shared/metrics"
)

func main() {
	cfg := config.LoadService("live-gateway")

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis: canal Pub/Sub alimentado pelo pool-worker
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	hub := ws.NewHub(ws.Options{
		AllowOrigin: allowOrigin(cfg.CORSOrigins),
		Metrics:     ws.NewMetrics(prometheus.DefaultRegisterer),
	}, log)

	ws.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub)
	go hub.RunJanitor(ctx)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           hub.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		_ = srv.Shutdown(shutdownCtx)
		_ = msrv.Shutdown(shutdownCtx)
	}()

	log.Info("live-gateway listening",
		zap.String("addr", srv.Addr),
		zap.String("channel", cfg.RedisPubSubChannel),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("live", zap.Error(err))
	}
}

// allowOrigin aplica CORS_ORIGINS ao upgrade do websocket; "*" libera tudo
func allowOrigin(origins []string) func(r *http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		return o == "" || slices.Contains(origins, o)
	}
}
