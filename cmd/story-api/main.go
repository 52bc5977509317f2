package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/cache"
	"github.com/radieske/story-bet-platform/internal/shared/config"
	"github.com/radieske/story-bet-platform/internal/shared/db"
	"github.com/radieske/story-bet-platform/internal/shared/kafka"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/internal/shared/metrics"
	"github.com/radieske/story-bet-platform/internal/story-api/auth"
	httpapi "github.com/radieske/story-bet-platform/internal/story-api/http"
	"github.com/radieske/story-bet-platform/internal/story-api/producer"
	"github.com/radieske/story-bet-platform/internal/story-api/repo"
)

func main() {
	cfg := config.LoadService("story-api")

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	// Redis: cache de leitura e nonces
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic bet_placed)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer writer.Close()

	repository := repo.NewPostgres(pg)
	a := &httpapi.API{
		Log:           log,
		Reader:        repository,
		Bets:          repository,
		Users:         repository,
		Cache:         cache.NewReadCache(rdb, cfg.ReadCacheTTL),
		Nonces:        auth.NewNonceStore(rdb, cfg.NonceTTL),
		Auth:          auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Publisher:     producer.NewKafkaPublisher(writer, cfg.TopicBetPlaced),
		Metrics:       httpapi.NewMetrics(prometheus.DefaultRegisterer),
		AllowedTokens: httpapi.TokenSet(cfg.AllowedTokens),
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(a.Router())

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		if err := repository.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = msrv.Shutdown(shutdownCtx)
	}()

	log.Info("story-api listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api", zap.Error(err))
	}
}
