// Package quote calcula estimativas de odds e ganhos a partir dos totais de um pool.
//
// Nenhum valor daqui é autoritativo: o pagamento real é o registrado na aposta
// liquidada pelo sistema de liquidação on-chain.
package quote

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// Fração do pool distribuída aos vencedores
	DefaultWinnerPercentage = 0.85
	// Taxa da plataforma cobrada na aposta
	DefaultPlatformFee = 0.02
)

// Odds retorna total/outcome. Sem depósitos no outcome a odd é 0, não infinita.
func Odds(outcomeDeposits, totalDeposits float64) float64 {
	if outcomeDeposits == 0 {
		return 0
	}
	return totalDeposits / outcomeDeposits
}

// Percentage retorna a fatia do outcome no pool, de 0 a 100.
func Percentage(outcomeDeposits, totalDeposits float64) float64 {
	if totalDeposits == 0 {
		return 0
	}
	return 100 * outcomeDeposits / totalDeposits
}

// PotentialWinnings estima o retorno proporcional da aposta sobre a parte do pool
// destinada aos vencedores. Sem depósitos prévios no outcome retorna 0.
func PotentialWinnings(betAmount, outcomeDeposits, totalDeposits, winnerPercentage float64) float64 {
	if outcomeDeposits == 0 {
		return 0
	}
	return (betAmount / outcomeDeposits) * (totalDeposits * winnerPercentage)
}

// Quote agrupa os três cálculos para um outcome e um valor candidato.
type Quote struct {
	OutcomeID         string  `json:"outcomeId,omitempty"`
	BetAmount         float64 `json:"betAmount"`
	Odds              float64 `json:"odds"`
	Percentage        float64 `json:"percentage"`
	PotentialWinnings float64 `json:"potentialWinnings"`
	PlatformFee       float64 `json:"platformFee"`
	Estimate          bool    `json:"estimate"` // sempre true
}

// Params são os valores de entrada como chegam da API (strings decimais).
type Params struct {
	OutcomeID        string
	BetAmount        string
	OutcomeDeposits  string
	TotalDeposits    string
	WinnerPercentage float64 // 0 usa DefaultWinnerPercentage
	PlatformFee      float64 // 0 usa DefaultPlatformFee
}

// ForOutcome converte as strings decimais e calcula a Quote.
func ForOutcome(p Params) (Quote, error) {
	bet, err := parseNonNegative("bet amount", p.BetAmount)
	if err != nil {
		return Quote{}, err
	}
	outcome, err := parseNonNegative("outcome deposits", p.OutcomeDeposits)
	if err != nil {
		return Quote{}, err
	}
	total, err := parseNonNegative("total deposits", p.TotalDeposits)
	if err != nil {
		return Quote{}, err
	}

	wp := p.WinnerPercentage
	if wp == 0 {
		wp = DefaultWinnerPercentage
	}
	fee := p.PlatformFee
	if fee == 0 {
		fee = DefaultPlatformFee
	}

	return Quote{
		OutcomeID:         p.OutcomeID,
		BetAmount:         bet,
		Odds:              Odds(outcome, total),
		Percentage:        Percentage(outcome, total),
		PotentialWinnings: PotentialWinnings(bet, outcome, total, wp),
		PlatformFee:       bet * fee,
		Estimate:          true,
	}, nil
}

// parseNonNegative aceita "" como zero
func parseNonNegative(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("quote: invalid %s %q: %w", field, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("quote: negative %s %q", field, s)
	}
	return d.InexactFloat64(), nil
}
