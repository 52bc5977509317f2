// story-simulator publica, em ambiente local, os eventos que o gerador de capítulos
// e o sistema de liquidação on-chain produziriam.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/config"
	"github.com/radieske/story-bet-platform/internal/shared/db"
	"github.com/radieske/story-bet-platform/internal/shared/kafka"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/internal/story-simulator/publisher"
	"github.com/radieske/story-bet-platform/internal/story-simulator/repo"
	"github.com/radieske/story-bet-platform/internal/story-simulator/settle"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
	"github.com/radieske/story-bet-platform/pkg/quote"
)

type sim struct {
	cfg  config.Config
	log  *zap.Logger
	repo *repo.Postgres
	pub  *publisher.KafkaPublisher

	closers []func() error
}

func (s *sim) init(ctx context.Context) error {
	log, err := logger.New(s.cfg.ServiceName, s.cfg.Env)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	s.log = log

	pg, err := db.ConnectPostgres(s.cfg.PostgresDSN)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, pg.Close)
	s.repo = repo.NewPostgres(pg)

	if s.cfg.Env == "local" || s.cfg.Env == "dev" {
		brokers := kafka.Brokers(s.cfg.KafkaBrokers)
		if len(brokers) > 0 {
			ectx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			topics := []string{s.cfg.TopicStoryEvents, s.cfg.TopicPoolResolved}
			if err := publisher.EnsureTopics(ectx, brokers[0], topics, log); err != nil {
				log.Warn("failed to create kafka topics", zap.Error(err))
			}
		}
	}

	storyEvents := kafka.NewWriter(s.cfg.KafkaBrokers, s.cfg.TopicStoryEvents)
	resolved := kafka.NewWriter(s.cfg.KafkaBrokers, s.cfg.TopicPoolResolved)
	s.closers = append(s.closers, storyEvents.Close, resolved.Close)
	s.pub = &publisher.KafkaPublisher{StoryEvents: storyEvents, PoolResolved: resolved, Log: log}
	return nil
}

func (s *sim) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

func (s *sim) closingSoon(ctx context.Context, poolID string, minutes int) error {
	p, err := s.repo.Pool(ctx, poolID)
	if err != nil {
		return err
	}
	return s.pub.PublishStoryEvent(ctx, events.BettingClosingSoon, p.StoryID, p.ID,
		events.ClosingSoonPayload{PoolID: p.ID, ChapterID: p.ChapterID, MinutesRemaining: minutes})
}

func (s *sim) closeBetting(ctx context.Context, poolID string) error {
	p, err := s.repo.Pool(ctx, poolID)
	if err != nil {
		return err
	}
	return s.pub.PublishStoryEvent(ctx, events.ChapterUpdate, p.StoryID, p.ID, events.ChapterUpdatePayload{
		ChapterID: p.ChapterID, StoryID: p.StoryID, Number: p.ChapterNumber, Status: events.ChapterBettingClosed,
	})
}

func (s *sim) resolve(ctx context.Context, poolID, winningOutcomeID string) error {
	p, err := s.repo.Pool(ctx, poolID)
	if err != nil {
		return err
	}
	bets, err := s.repo.Bets(ctx, poolID)
	if err != nil {
		return err
	}

	r := settle.Pool(bets, winningOutcomeID, decimal.NewFromFloat(quote.DefaultWinnerPercentage))
	return s.pub.PublishPoolResolved(ctx, events.PoolResolved{
		PoolID:           p.ID,
		StoryID:          p.StoryID,
		ChapterID:        p.ChapterID,
		WinningOutcomeID: winningOutcomeID,
		TotalPool:        r.TotalPool.String(),
		TotalPayout:      r.TotalPayout.String(),
		Winners:          r.Winners,
		Settlements:      r.Settlements,
		ResolvedAt:       time.Now().UTC(),
	})
}

func newRootCmd(s *sim) *cobra.Command {
	root := &cobra.Command{
		Use:           "story-simulator",
		Short:         "Publish chapter lifecycle and settlement events for local runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.init(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) { s.close() },
	}

	var minutes int
	closingSoon := &cobra.Command{
		Use:   "closing-soon <poolID>",
		Short: "Announce that betting on a pool is about to close",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.closingSoon(cmd.Context(), args[0], minutes)
		},
	}
	closingSoon.Flags().IntVar(&minutes, "minutes", 5, "minutes remaining")

	closeCmd := &cobra.Command{
		Use:   "close <poolID>",
		Short: "Close betting on the pool's chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.closeBetting(cmd.Context(), args[0])
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <poolID> <winningOutcomeID>",
		Short: "Settle a pool and publish the resolution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.resolve(cmd.Context(), args[0], args[1])
		},
	}

	var level string
	announce := &cobra.Command{
		Use:   "announce <message>",
		Short: "Broadcast a global announcement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.pub.PublishStoryEvent(cmd.Context(), events.Announcement, "", "",
				events.AnnouncementPayload{Message: args[0], Level: level})
		},
	}
	announce.Flags().StringVar(&level, "level", "info", "info | warning")

	root.AddCommand(closingSoon, closeCmd, resolve, announce)
	return root
}

func main() {
	s := &sim{cfg: config.LoadService("story-simulator")}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(s).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
