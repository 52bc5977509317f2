package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/radieske/story-bet-platform/internal/client/live"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
	"github.com/radieske/story-bet-platform/pkg/quote"
)

var watchedEvents = []string{
	events.BettingUpdate,
	events.BettingClosingSoon,
	events.ChapterUpdate,
	events.ChapterNew,
	events.PoolResolvedEvent,
	events.EntityNew,
	events.NFTMinted,
	events.Announcement,
}

func f4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func renderQuote(w io.Writer, q quote.Quote) error {
	table := tablewriter.NewWriter(w)
	table.Header("Bet", "Odds", "Share %", "Potential", "Fee")
	if err := table.Append(f4(q.BetAmount), f4(q.Odds), f2(q.Percentage), f4(q.PotentialWinnings), f4(q.PlatformFee)); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "estimate only: the settled payout is authoritative")
	return err
}

func renderOutcomes(w io.Writer, outcomes []api.Outcome, quotes []quote.Quote) error {
	table := tablewriter.NewWriter(w)
	table.Header("Outcome", "Description", "Deposits", "Odds", "Share %", "Potential")
	for i, o := range outcomes {
		q := quotes[i]
		desc := o.Description
		if o.IsSelected {
			desc += " *"
		}
		if err := table.Append(o.ID, desc, o.TotalDeposits, f4(q.Odds), f2(q.Percentage), f4(q.PotentialWinnings)); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderStories(w io.Writer, stories []api.Story) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Title", "Genre", "Status", "Chapters")
	for _, s := range stories {
		if err := table.Append(s.ID, s.Title, s.Genre, s.Status, strconv.Itoa(s.ChapterCount)); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderPools(w io.Writer, pools []api.Pool) error {
	table := tablewriter.NewWriter(w)
	table.Header("Pool", "Chapter", "Status", "Total", "Outcomes", "Closes")
	for _, p := range pools {
		if err := table.Append(p.ID, p.ChapterID, p.Status, p.TotalDeposits, strconv.Itoa(len(p.Outcomes)), shortTime(p.ClosesAt)); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderLeaderboard(w io.Writer, rows []api.LeaderboardEntry) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Address", "User", "Winnings", "Bets", "Won")
	for _, r := range rows {
		if err := table.Append(strconv.Itoa(r.Rank), r.Address, r.Username, r.TotalWinnings,
			strconv.Itoa(r.BetsPlaced), strconv.Itoa(r.BetsWon)); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderBets(w io.Writer, list []api.Bet) error {
	table := tablewriter.NewWriter(w)
	table.Header("Bet", "Outcome", "Amount", "Token", "Status", "Payout")
	for _, b := range list {
		payout := "-"
		if b.Payout != nil {
			payout = *b.Payout
		}
		if err := table.Append(b.ID, b.OutcomeID, b.Amount, b.Token, b.Status, payout); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderStats(w io.Writer, s api.UserStats) {
	fmt.Fprintf(w, "%s  bets %d  won %d  lost %d  wagered %s  winnings %s  win rate %s%%\n",
		s.Address, s.TotalBets, s.BetsWon, s.BetsLost, s.TotalWagered, s.TotalWinnings, f2(100*s.WinRate))
}

// formatEvent gera uma linha por evento ao vivo
func formatEvent(ev live.Event) string {
	var sb strings.Builder
	sb.WriteString(ev.Ts.Local().Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(ev.Name)
	if ev.StoryID != "" {
		sb.WriteString(" story=" + ev.StoryID)
	}
	if ev.PoolID != "" {
		sb.WriteString(" pool=" + ev.PoolID)
	}
	if len(ev.Data) > 0 {
		sb.WriteString(" ")
		sb.Write(ev.Data)
	}
	return sb.String()
}
