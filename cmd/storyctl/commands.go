package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/radieske/story-bet-platform/internal/client/auth"
	"github.com/radieske/story-bet-platform/internal/client/bets"
	"github.com/radieske/story-bet-platform/internal/client/live"
	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/client/reads"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/quote"
)

func newQuoteCmd() *cobra.Command {
	var winnerPct float64
	cmd := &cobra.Command{
		Use:   "quote <betAmount> <outcomeDeposits> <totalDeposits>",
		Short: "Estimate odds and potential winnings from pool totals",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := quote.ForOutcome(quote.Params{
				BetAmount:        args[0],
				OutcomeDeposits:  args[1],
				TotalDeposits:    args[2],
				WinnerPercentage: winnerPct,
			})
			if err != nil {
				return err
			}
			return renderQuote(cmd.OutOrStdout(), q)
		},
	}
	cmd.Flags().Float64Var(&winnerPct, "winner-pct", quote.DefaultWinnerPercentage, "fraction of the pool paid to winners")
	return cmd
}

func newStoriesCmd(a *app) *cobra.Command {
	var f reads.StoryFilter
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "List stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stories, err := a.reads.Stories(cmd.Context(), f)
			if err != nil {
				return err
			}
			return renderStories(cmd.OutOrStdout(), stories)
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&f.Genre, "genre", "", "filter by genre")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	return cmd
}

func newPoolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List pools open for betting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pools, err := a.reads.ActivePools(cmd.Context())
			if err != nil {
				return err
			}
			return renderPools(cmd.OutOrStdout(), pools)
		},
	}
}

func newOutcomesCmd(a *app) *cobra.Command {
	var stake string
	cmd := &cobra.Command{
		Use:   "outcomes <chapterID>",
		Short: "Show a chapter's outcomes with estimated quotes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := a.reads.Chapter(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outcomes, quotes, err := a.reads.OutcomeQuotes(cmd.Context(), ch, stake)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d: %s [%s] closes %s\n", ch.Number, ch.Title, ch.Status, shortTime(ch.BettingEndsAt))
			return renderOutcomes(cmd.OutOrStdout(), outcomes, quotes)
		},
	}
	cmd.Flags().StringVar(&stake, "stake", "1", "candidate bet amount")
	return cmd
}

func newLeaderboardCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show top bettors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.reads.Leaderboard(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderLeaderboard(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var storyID, poolID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live events for a story and/or pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := &syncWriter{w: cmd.OutOrStdout()}

			conn := live.New(live.Config{BaseURL: a.cfg.LiveURL}, a.log)
			bridge := reads.BridgeInvalidation(conn, a.cache, a.log)
			defer bridge.Close()

			defer conn.WatchConnectivity(func(connected bool) {
				state := "disconnected"
				if connected {
					state = "connected"
				}
				fmt.Fprintf(out, "%s live %s\n", time.Now().Format("15:04:05"), state)
			}).Close()

			for _, name := range watchedEvents {
				defer conn.On(name, func(ev live.Event) {
					fmt.Fprintln(out, formatEvent(ev))
				}).Close()
			}

			if storyID != "" {
				defer conn.SubscribeStory(storyID).Close()
			}
			if poolID != "" {
				defer conn.SubscribePool(poolID).Close()
				obs := rcache.Watch(a.cache, a.reads.PoolQuery(poolID), func(res rcache.Result[api.Pool], err error) {
					if err != nil {
						fmt.Fprintf(out, "pool %s: %v\n", poolID, err)
						return
					}
					_ = renderPools(out, []api.Pool{res.Data})
				})
				defer obs.Close()
			}

			// bloqueia até ctx terminar (Ctrl+C)
			conn.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "story id to follow")
	cmd.Flags().StringVar(&poolID, "pool", "", "pool id to follow")
	return cmd
}

func (a *app) login(cmd *cobra.Command) (api.User, error) {
	if a.cfg.WalletPrivateKey == "" {
		return api.User{}, errors.New("WALLET_PRIVATE_KEY is not set")
	}
	signer, err := auth.NewKeySigner(a.cfg.WalletPrivateKey)
	if err != nil {
		return api.User{}, err
	}
	return a.session.Login(cmd.Context(), signer)
}

func newBetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bet <outcomeID> <amount> <token>",
		Short: "Place a bet on an outcome",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			// valida antes do login para não gastar um nonce à toa
			if _, err := bets.ValidateAmount(args[1]); err != nil {
				return err
			}
			if _, err := a.login(cmd); err != nil {
				return err
			}

			s := bets.NewSubmitter(a.api, a.session, a.cache, a.cfg.AllowedTokens, a.log)
			bet, err := s.PlaceBet(cmd.Context(), bets.PlaceBetInput{OutcomeID: args[0], Amount: args[1], Token: args[2]})
			if err != nil {
				return err
			}
			return renderBets(cmd.OutOrStdout(), []api.Bet{*bet})
		},
	}
}

func newMeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your stats and bets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.login(cmd)
			if err != nil {
				return err
			}
			stats, err := a.reads.UserStats(cmd.Context(), user.Address)
			if err != nil {
				return err
			}
			list, err := a.reads.UserBets(cmd.Context(), user.Address)
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), stats)
			return renderBets(cmd.OutOrStdout(), list)
		},
	}
}
