package bets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/story-bet-platform/internal/client/apiclient"
	"github.com/radieske/story-bet-platform/internal/client/bets"
	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/client/reads"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
)

type staticCreds struct {
	token, address string
	ok             bool
}

func (c staticCreds) Credentials() (string, string, bool) { return c.token, c.address, c.ok }

type recorder struct{ prefixes []rcache.Key }

func (r *recorder) Invalidate(p rcache.Key) int {
	r.prefixes = append(r.prefixes, p)
	return 1
}

type betServer struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func newBetServer(t *testing.T, status int) *betServer {
	b := &betServer{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		assert.Equal(t, "/v1/bets", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req api.PlaceBetRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if status >= 300 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "betting closed"})
			return
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(api.Bet{
			ID: "bet-1", OutcomeID: req.OutcomeID, Amount: req.Amount, Token: req.Token, Status: api.BetPending,
		})
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *betServer) client() *apiclient.Client {
	return apiclient.New(apiclient.Options{BaseURL: b.srv.URL})
}

var authed = staticCreds{token: "tok", address: "0xAbC", ok: true}

func TestPlaceBet_NotAuthenticatedMakesNoRequest(t *testing.T) {
	srv := newBetServer(t, http.StatusCreated)
	rec := &recorder{}
	s := bets.NewSubmitter(srv.client(), staticCreds{}, rec, nil, nil)

	_, err := s.PlaceBet(context.Background(), bets.PlaceBetInput{OutcomeID: "o1", Amount: "1", Token: "ETH"})
	assert.ErrorIs(t, err, bets.ErrNotAuthenticated)
	assert.Zero(t, srv.calls.Load())
	assert.Empty(t, rec.prefixes)
}

func TestPlaceBet_RejectsInvalidInput(t *testing.T) {
	srv := newBetServer(t, http.StatusCreated)
	rec := &recorder{}
	s := bets.NewSubmitter(srv.client(), authed, rec, []string{"ETH", "USDC"}, nil)

	cases := []struct {
		name string
		in   bets.PlaceBetInput
		want error
	}{
		{"empty amount", bets.PlaceBetInput{OutcomeID: "o1", Amount: "", Token: "ETH"}, bets.ErrInvalidAmount},
		{"zero amount", bets.PlaceBetInput{OutcomeID: "o1", Amount: "0", Token: "ETH"}, bets.ErrInvalidAmount},
		{"negative amount", bets.PlaceBetInput{OutcomeID: "o1", Amount: "-2.5", Token: "ETH"}, bets.ErrInvalidAmount},
		{"not a number", bets.PlaceBetInput{OutcomeID: "o1", Amount: "ten", Token: "ETH"}, bets.ErrInvalidAmount},
		{"unknown token", bets.PlaceBetInput{OutcomeID: "o1", Amount: "1", Token: "DOGE"}, bets.ErrUnsupportedToken},
		{"missing outcome", bets.PlaceBetInput{Amount: "1", Token: "ETH"}, bets.ErrMissingOutcome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.PlaceBet(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, srv.calls.Load())
	assert.Empty(t, rec.prefixes)
}

func TestPlaceBet_ServerRejectionLeavesCacheUntouched(t *testing.T) {
	srv := newBetServer(t, http.StatusConflict)
	rec := &recorder{}
	s := bets.NewSubmitter(srv.client(), authed, rec, nil, nil)

	_, err := s.PlaceBet(context.Background(), bets.PlaceBetInput{OutcomeID: "o1", Amount: "1", Token: "eth"})

	var apiErr *bets.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "betting closed", apiErr.Message)
	assert.Equal(t, int32(1), srv.calls.Load())
	assert.Empty(t, rec.prefixes)
}

func TestPlaceBet_SuccessInvalidatesUserAndBetting(t *testing.T) {
	srv := newBetServer(t, http.StatusCreated)
	rec := &recorder{}
	s := bets.NewSubmitter(srv.client(), authed, rec, nil, nil)

	bet, err := s.PlaceBet(context.Background(), bets.PlaceBetInput{OutcomeID: "o1", Amount: "0.50", Token: "usdc"})
	require.NoError(t, err)
	assert.Equal(t, "bet-1", bet.ID)
	assert.Equal(t, "0.5", bet.Amount)
	assert.Equal(t, "USDC", bet.Token)
	assert.Equal(t, api.BetPending, bet.Status)

	require.Len(t, rec.prefixes, 3)
	assert.True(t, rec.prefixes[0].Equal(reads.UserBetsKey("0xabc")))
	assert.True(t, rec.prefixes[1].Equal(reads.UserStatsKey("0xabc")))
	assert.True(t, rec.prefixes[2].Equal(reads.PrefixBetting))
}

func TestPlaceBet_NextReadsRefetch(t *testing.T) {
	srv := newBetServer(t, http.StatusCreated)
	cache := rcache.New(rcache.Options{})
	t.Cleanup(cache.Close)

	var fetches atomic.Int32
	outcomes := rcache.Query[int]{
		Key:   reads.OutcomesKey("c1"),
		Fetch: func(context.Context) (int, error) { return int(fetches.Add(1)), nil },
	}
	leaderboard := rcache.Query[int]{
		Key:   reads.LeaderboardKey(10),
		Fetch: func(context.Context) (int, error) { return int(fetches.Add(1)), nil },
	}
	ctx := context.Background()
	_, err := rcache.Fetch(ctx, cache, outcomes)
	require.NoError(t, err)
	_, err = rcache.Fetch(ctx, cache, leaderboard)
	require.NoError(t, err)
	require.Equal(t, int32(2), fetches.Load())

	s := bets.NewSubmitter(srv.client(), authed, cache, nil, nil)
	_, err = s.PlaceBet(ctx, bets.PlaceBetInput{OutcomeID: "o1", Amount: "1", Token: "ETH"})
	require.NoError(t, err)

	res, err := rcache.Fetch(ctx, cache, outcomes)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	res, err = rcache.Fetch(ctx, cache, leaderboard)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, int32(3), fetches.Load())
}

func TestValidateAmount(t *testing.T) {
	d, err := bets.ValidateAmount(" 1.250 ")
	require.NoError(t, err)
	assert.Equal(t, "1.25", d.String())
}
