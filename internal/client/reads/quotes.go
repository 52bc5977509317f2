package reads

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/quote"
)

var ErrNoPool = errors.New("reads: chapter has no betting pool")

// OutcomeQuotes busca outcomes e pool do capítulo em paralelo e estima a
// cotação de cada outcome para o valor stake.
func (c *Client) OutcomeQuotes(ctx context.Context, ch api.Chapter, stake string) ([]api.Outcome, []quote.Quote, error) {
	if ch.PoolID == "" {
		return nil, nil, ErrNoPool
	}

	var (
		outcomes []api.Outcome
		pool     api.Pool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outcomes, err = c.Outcomes(gctx, ch.ID)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = c.Pool(gctx, ch.PoolID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	total := pool.TotalDeposits
	if total == "" {
		total = sumDeposits(outcomes)
	}

	quotes := make([]quote.Quote, 0, len(outcomes))
	for _, o := range outcomes {
		q, err := quote.ForOutcome(quote.Params{
			OutcomeID:       o.ID,
			BetAmount:       stake,
			OutcomeDeposits: o.TotalDeposits,
			TotalDeposits:   total,
		})
		if err != nil {
			return nil, nil, err
		}
		quotes = append(quotes, q)
	}
	return outcomes, quotes, nil
}

func sumDeposits(outcomes []api.Outcome) string {
	sum := decimal.Zero
	for _, o := range outcomes {
		if d, err := decimal.NewFromString(o.TotalDeposits); err == nil {
			sum = sum.Add(d)
		}
	}
	return sum.String()
}
