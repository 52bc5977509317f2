// Package bets envia apostas ao story-api e invalida o cache afetado.
package bets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/client/apiclient"
	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/client/reads"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
)

var (
	ErrNotAuthenticated = errors.New("bets: not authenticated")
	ErrInvalidAmount    = errors.New("bets: amount must be a positive decimal")
	ErrUnsupportedToken = errors.New("bets: unsupported token")
	ErrMissingOutcome   = errors.New("bets: outcome id is required")
)

// APIError é a recusa do servidor (status não-2xx)
type APIError = apiclient.Error

// DefaultTokens é o conjunto aceito quando nenhum é configurado
var DefaultTokens = []string{"ETH", "USDC"}

// Credentials fornece o token bearer e o endereço do usuário
type Credentials interface {
	Credentials() (token, address string, ok bool)
}

// Poster é a parte do apiclient usada no envio
type Poster interface {
	Post(ctx context.Context, path, token string, body, out any) error
}

// Invalidator é a parte do cache usada após o envio
type Invalidator interface {
	Invalidate(prefix rcache.Key) int
}

type PlaceBetInput struct {
	OutcomeID string
	Amount    string
	Token     string
}

type Submitter struct {
	api    Poster
	creds  Credentials
	cache  Invalidator
	tokens map[string]struct{}
	log    *zap.Logger
}

// NewSubmitter: tokens vazio usa DefaultTokens. A comparação de token ignora caixa.
func NewSubmitter(p Poster, creds Credentials, cache Invalidator, tokens []string, log *zap.Logger) *Submitter {
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return &Submitter{api: p, creds: creds, cache: cache, tokens: set, log: logger.OrNop(log).Named("bets")}
}

// PlaceBet valida as pré-condições, envia a aposta e, só em caso de sucesso,
// invalida as apostas e estatísticas do usuário e todo o prefixo de apostas.
// Não há retry: o erro volta direto ao chamador.
func (s *Submitter) PlaceBet(ctx context.Context, in PlaceBetInput) (*api.Bet, error) {
	token, address, ok := s.creds.Credentials()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	amount, err := ValidateAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	sym := strings.ToUpper(strings.TrimSpace(in.Token))
	if _, ok := s.tokens[sym]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedToken, in.Token)
	}
	if strings.TrimSpace(in.OutcomeID) == "" {
		return nil, ErrMissingOutcome
	}

	req := api.PlaceBetRequest{OutcomeID: in.OutcomeID, Amount: amount.String(), Token: sym}
	var bet api.Bet
	if err := s.api.Post(ctx, "/v1/bets", token, req, &bet); err != nil {
		s.log.Warn("place bet failed", zap.String("outcome_id", in.OutcomeID), zap.Error(err))
		return nil, fmt.Errorf("bets: place bet: %w", err)
	}

	n := s.cache.Invalidate(reads.UserBetsKey(address))
	n += s.cache.Invalidate(reads.UserStatsKey(address))
	n += s.cache.Invalidate(reads.PrefixBetting)
	s.log.Info("bet placed",
		zap.String("bet_id", bet.ID),
		zap.String("outcome_id", bet.OutcomeID),
		zap.String("amount", bet.Amount),
		zap.String("token", bet.Token),
		zap.Int("invalidated", n),
	)
	return &bet, nil
}

// ValidateAmount aceita apenas decimais estritamente positivos
func ValidateAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
