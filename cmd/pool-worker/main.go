package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/story-bet-platform/internal/pool-worker/consumer"
	"github.com/radieske/story-bet-platform/internal/pool-worker/pubsub"
	"github.com/radieske/story-bet-platform/internal/pool-worker/repository"
	sharedcache "github.com/radieske/story-bet-platform/internal/shared/cache"
	"github.com/radieske/story-bet-platform/internal/shared/config"
	"github.com/radieske/story-bet-platform/internal/shared/db"
	"github.com/radieske/story-bet-platform/internal/shared/kafka"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/internal/shared/metrics"
)

const groupID = "pool-worker"

func main() {
	cfg := config.LoadService("pool-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Métricas Prometheus por tópico
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_worker_messages_consumed_total", Help: "mensagens consumidas"}, []string{"topic"})
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_worker_messages_applied_total", Help: "mensagens aplicadas"}, []string{"topic"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_worker_errors_total", Help: "erros por tópico e estágio"}, []string{"topic", "stage"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_worker_live_published_total", Help: "envelopes publicados no canal ao vivo"}, []string{"event"})
	publishErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_worker_live_publish_errors_total", Help: "falhas ao publicar no Redis"})
	prometheus.MustRegister(consumed, applied, errorsBy, published, publishErrors)

	h := &consumer.Handlers{
		Log:            log,
		Repo:           repository.NewPostgresRepo(pg),
		Pub:            pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		Cache:          sharedcache.NewReadCache(redisClient, cfg.ReadCacheTTL),
		OnPublished:    func(event string) { published.WithLabelValues(event).Inc() },
		OnPublishError: func() { publishErrors.Inc() },
	}

	// DLQ só para bet_placed: uma aposta não contabilizada deixa os totais errados
	var dlq consumer.MessageWriter
	if cfg.TopicBetPlacedDLQ != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlacedDLQ)
		defer w.Close()
		dlq = w
	}

	routes := []struct {
		topic   string
		handle  consumer.HandleFunc
		dlq     consumer.MessageWriter
		retries int
	}{
		{cfg.TopicBetPlaced, h.BetPlaced, dlq, 3},
		{cfg.TopicPoolResolved, h.PoolResolved, nil, 5},
		{cfg.TopicStoryEvents, h.StoryEvent, nil, 3},
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	defer msrv.Close()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range routes {
		reader := kafka.NewReader(cfg.KafkaBrokers, r.topic, groupID)
		defer reader.Close()

		topic := r.topic
		proc := &consumer.Processor{
			Log:        log,
			Topic:      topic,
			Reader:     reader,
			Handle:     r.handle,
			DLQ:        r.dlq,
			Retries:    r.retries,
			OnConsumed: func() { consumed.WithLabelValues(topic).Inc() },
			OnApplied:  func() { applied.WithLabelValues(topic).Inc() },
			OnError:    func(stage string) { errorsBy.WithLabelValues(topic, stage).Inc() },
		}
		g.Go(func() error { return proc.Run(gctx) })
	}

	log.Info("pool-worker started",
		zap.String("bet_placed", cfg.TopicBetPlaced),
		zap.String("pool_resolved", cfg.TopicPoolResolved),
		zap.String("story_events", cfg.TopicStoryEvents),
		zap.String("channel", cfg.RedisPubSubChannel),
	)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("pool-worker stopped")
}
