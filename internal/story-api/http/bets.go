package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/story-api/auth"
	"github.com/radieske/story-bet-platform/internal/story-api/repo"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

var errBettingClosed = errors.New("betting is closed for this chapter")

// placeBet grava a aposta PENDING e publica bet_placed; os totais do pool são
// atualizados pelo pool-worker
func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	addr, _ := auth.Address(r.Context())

	var req api.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.betResult("bad_request")
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		a.betResult("bad_request")
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}
	token := strings.ToUpper(strings.TrimSpace(req.Token))
	if _, ok := a.AllowedTokens[token]; !ok {
		a.betResult("bad_request")
		writeError(w, http.StatusBadRequest, "unsupported token")
		return
	}
	if req.OutcomeID == "" {
		a.betResult("bad_request")
		writeError(w, http.StatusBadRequest, "outcomeId required")
		return
	}

	target, err := a.Bets.BetTarget(r.Context(), req.OutcomeID)
	if err != nil {
		a.betResult("error")
		a.fail(w, r, err)
		return
	}
	if err := bettingOpen(target, time.Now()); err != nil {
		a.betResult("closed")
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	bet, err := a.Bets.CreatePendingBet(r.Context(), repo.NewBet{
		UserAddress: addr,
		Target:      target,
		Amount:      amount,
		Token:       token,
	})
	if err != nil {
		a.betResult("error")
		a.fail(w, r, err)
		return
	}

	// a aposta já está gravada; uma falha aqui só atrasa os totais ao vivo
	if err := a.Publisher.PublishBetPlaced(r.Context(), events.BetPlaced{
		BetID:       bet.ID,
		UserAddress: addr,
		StoryID:     target.StoryID,
		ChapterID:   target.ChapterID,
		PoolID:      target.PoolID,
		OutcomeID:   target.OutcomeID,
		Amount:      bet.Amount,
		Token:       token,
	}); err != nil {
		a.Log.Error("publish bet_placed failed", zap.String("bet_id", bet.ID), zap.Error(err))
	}

	a.betResult("accepted")
	a.Log.Info("bet accepted",
		zap.String("bet_id", bet.ID),
		zap.String("pool_id", target.PoolID),
		zap.String("amount", bet.Amount),
		zap.String("token", token),
	)
	writeJSON(w, http.StatusCreated, bet)
}

func bettingOpen(t repo.BetTarget, now time.Time) error {
	if t.ChapterStatus != events.ChapterBettingOpen || t.PoolStatus != api.PoolOpen {
		return errBettingClosed
	}
	if t.ClosesAt != nil && !now.Before(*t.ClosesAt) {
		return errBettingClosed
	}
	return nil
}

func (a *API) betResult(result string) {
	if a.Metrics != nil {
		a.Metrics.Bets.WithLabelValues(result).Inc()
	}
}
