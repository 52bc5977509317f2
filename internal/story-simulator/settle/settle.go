// Package settle calcula a liquidação de um pool como o sistema on-chain faria,
// para ambientes locais sem contrato.
package settle

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// payoutPlaces é a precisão das colunas NUMERIC(38,18)
const payoutPlaces = 18

type Bet struct {
	ID        string
	OutcomeID string
	Amount    decimal.Decimal
}

type Result struct {
	Settlements []events.BetSettlement
	TotalPool   decimal.Decimal
	TotalPayout decimal.Decimal
	Winners     int
}

// Pool divide winnerShare do total entre as apostas no outcome vencedor, na proporção
// do valor apostado. Sem apostas no vencedor, todas são reembolsadas.
func Pool(bets []Bet, winningOutcomeID string, winnerShare decimal.Decimal) Result {
	var r Result
	winningDeposits := decimal.Zero
	for _, b := range bets {
		r.TotalPool = r.TotalPool.Add(b.Amount)
		if b.OutcomeID == winningOutcomeID {
			winningDeposits = winningDeposits.Add(b.Amount)
		}
	}

	r.Settlements = make([]events.BetSettlement, 0, len(bets))
	if winningDeposits.IsZero() {
		for _, b := range bets {
			r.Settlements = append(r.Settlements, events.BetSettlement{BetID: b.ID, Status: api.BetRefunded, Payout: b.Amount.String()})
			r.TotalPayout = r.TotalPayout.Add(b.Amount)
		}
		return r
	}

	prize := r.TotalPool.Mul(winnerShare)
	for _, b := range bets {
		if b.OutcomeID != winningOutcomeID {
			r.Settlements = append(r.Settlements, events.BetSettlement{BetID: b.ID, Status: api.BetLost})
			continue
		}
		payout := b.Amount.Mul(prize).DivRound(winningDeposits, payoutPlaces)
		r.Settlements = append(r.Settlements, events.BetSettlement{BetID: b.ID, Status: api.BetWon, Payout: payout.String()})
		r.TotalPayout = r.TotalPayout.Add(payout)
		r.Winners++
	}
	return r
}
