package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/cache"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

type fakeStore struct {
	mu       sync.Mutex
	counted  map[string]bool
	resolved []events.PoolResolved
	chapters []events.ChapterUpdatePayload
	entities []events.EntityNewPayload
	nfts     []events.NFTMintedPayload
	err      error
}

func newFakeStore() *fakeStore { return &fakeStore{counted: map[string]bool{}} }

func (s *fakeStore) ApplyBetPlaced(_ context.Context, ev events.BetPlaced) (events.BettingUpdatePayload, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return events.BettingUpdatePayload{}, false, s.err
	}
	if s.counted[ev.BetID] {
		return events.BettingUpdatePayload{}, false, nil
	}
	s.counted[ev.BetID] = true
	return events.BettingUpdatePayload{
		PoolID:        ev.PoolID,
		ChapterID:     ev.ChapterID,
		TotalDeposits: ev.Amount,
		Outcomes:      []events.OutcomeTotal{{OutcomeID: ev.OutcomeID, TotalDeposits: ev.Amount}},
	}, true, nil
}

func (s *fakeStore) ApplyPoolResolved(_ context.Context, ev events.PoolResolved) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, ev)
	return s.err
}

func (s *fakeStore) UpdateChapterStatus(_ context.Context, p events.ChapterUpdatePayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters = append(s.chapters, p)
	return s.err
}

func (s *fakeStore) InsertEntity(_ context.Context, p events.EntityNewPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, p)
	return s.err
}

func (s *fakeStore) InsertNFT(_ context.Context, p events.NFTMintedPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nfts = append(s.nfts, p)
	return s.err
}

type fakePub struct {
	mu   sync.Mutex
	envs []events.Envelope
	err  error
}

func (p *fakePub) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

func (p *fakePub) published() []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Envelope(nil), p.envs...)
}

type fakeAreas struct {
	mu      sync.Mutex
	deleted []string
}

func (a *fakeAreas) DeleteArea(_ context.Context, area string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleted = append(a.deleted, area)
	return 1, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHandlers() (*Handlers, *fakeStore, *fakePub, *fakeAreas) {
	st, pub, areas := newFakeStore(), &fakePub{}, &fakeAreas{}
	h := &Handlers{
		Log:   zap.NewNop(),
		Repo:  st,
		Pub:   pub,
		Cache: areas,
		Now:   func() time.Time { return fixedNow },
	}
	return h, st, pub, areas
}

func msg(t *testing.T, v any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestBetPlaced_PublishesScopedTotals(t *testing.T) {
	h, _, pub, areas := newHandlers()

	ev := events.BetPlaced{BetID: "b1", StoryID: "s1", ChapterID: "c1", PoolID: "p1", OutcomeID: "o1", Amount: "0.5", Token: "ETH"}
	require.NoError(t, h.BetPlaced(context.Background(), msg(t, ev)))

	envs := pub.published()
	require.Len(t, envs, 1)
	env := envs[0]
	assert.Equal(t, events.BettingUpdate, env.Event)
	assert.Equal(t, "s1", env.StoryID)
	assert.Equal(t, "p1", env.PoolID)
	assert.Equal(t, fixedNow, env.Ts)

	var p events.BettingUpdatePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "0.5", p.TotalDeposits)
	assert.Equal(t, "c1", p.ChapterID)
	require.Len(t, p.Outcomes, 1)
	assert.Equal(t, "o1", p.Outcomes[0].OutcomeID)

	// totais de pool não ficam no cache de leitura do servidor
	assert.Empty(t, areas.deleted)
}

func TestBetPlaced_RedeliveryIsSilent(t *testing.T) {
	h, _, pub, _ := newHandlers()
	m := msg(t, events.BetPlaced{BetID: "b1", PoolID: "p1", OutcomeID: "o1", Amount: "1"})

	require.NoError(t, h.BetPlaced(context.Background(), m))
	require.NoError(t, h.BetPlaced(context.Background(), m))

	assert.Len(t, pub.published(), 1)
}

func TestBetPlaced_Malformed(t *testing.T) {
	h, _, pub, _ := newHandlers()

	err := h.BetPlaced(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.ErrorIs(t, err, ErrMalformed)

	err = h.BetPlaced(context.Background(), msg(t, events.BetPlaced{BetID: "b1", Amount: "1"}))
	assert.ErrorIs(t, err, ErrMalformed)

	assert.Empty(t, pub.published())
}

func TestBetPlaced_StoreErrorIsReturned(t *testing.T) {
	h, st, pub, _ := newHandlers()
	st.err = errors.New("db down")

	err := h.BetPlaced(context.Background(), msg(t, events.BetPlaced{BetID: "b1", PoolID: "p1", OutcomeID: "o1", Amount: "1"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
	assert.Empty(t, pub.published())
}

func TestBetPlaced_PublishFailureDoesNotFail(t *testing.T) {
	h, _, pub, _ := newHandlers()
	pub.err = errors.New("redis down")
	var publishErrors int
	h.OnPublishError = func() { publishErrors++ }

	err := h.BetPlaced(context.Background(), msg(t, events.BetPlaced{BetID: "b1", PoolID: "p1", OutcomeID: "o1", Amount: "1"}))
	require.NoError(t, err)
	assert.Equal(t, 1, publishErrors)
}

func TestPoolResolved(t *testing.T) {
	h, st, pub, areas := newHandlers()

	ev := events.PoolResolved{
		PoolID: "p1", StoryID: "s1", ChapterID: "c1", WinningOutcomeID: "o2",
		TotalPool: "10", TotalPayout: "8.5", Winners: 3,
		Settlements: []events.BetSettlement{{BetID: "b1", Status: "WON", Payout: "8.5"}},
	}
	require.NoError(t, h.PoolResolved(context.Background(), msg(t, ev)))

	require.Len(t, st.resolved, 1)
	assert.Equal(t, fixedNow, st.resolved[0].ResolvedAt)
	assert.Equal(t, []string{cache.AreaChapters, cache.AreaStories, cache.AreaLeaderboard}, areas.deleted)

	envs := pub.published()
	require.Len(t, envs, 1)
	assert.Equal(t, events.PoolResolvedEvent, envs[0].Event)
	assert.Equal(t, "p1", envs[0].PoolID)
	assert.Equal(t, "s1", envs[0].StoryID)

	var p events.PoolResolvedPayload
	require.NoError(t, json.Unmarshal(envs[0].Data, &p))
	assert.Equal(t, "o2", p.WinningOutcomeID)
	assert.Equal(t, "8.5", p.TotalPayout)
	assert.Equal(t, 3, p.Winners)
}

func TestPoolResolved_RequiresWinner(t *testing.T) {
	h, st, _, _ := newHandlers()
	err := h.PoolResolved(context.Background(), msg(t, events.PoolResolved{PoolID: "p1"}))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, st.resolved)
}

func storyEvent(t *testing.T, name, storyID string, data any) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return msg(t, events.StoryEvent{Event: name, StoryID: storyID, Data: raw})
}

func TestStoryEvent_ChapterUpdate(t *testing.T) {
	h, st, pub, areas := newHandlers()

	p := events.ChapterUpdatePayload{ChapterID: "c2", StoryID: "s1", Number: 2, Status: events.ChapterBettingClosed}
	require.NoError(t, h.StoryEvent(context.Background(), storyEvent(t, events.ChapterUpdate, "s1", p)))

	require.Len(t, st.chapters, 1)
	assert.Equal(t, events.ChapterBettingClosed, st.chapters[0].Status)
	assert.Equal(t, []string{cache.AreaChapters, cache.AreaStories}, areas.deleted)

	envs := pub.published()
	require.Len(t, envs, 1)
	assert.Equal(t, events.ChapterUpdate, envs[0].Event)
	assert.Equal(t, "s1", envs[0].StoryID)
	assert.Equal(t, fixedNow, envs[0].Ts)

	var got events.ChapterUpdatePayload
	require.NoError(t, json.Unmarshal(envs[0].Data, &got))
	assert.Equal(t, p, got)
}

func TestStoryEvent_NFTMinted(t *testing.T) {
	h, st, pub, areas := newHandlers()

	p := events.NFTMintedPayload{TokenID: "7", EntityID: "e1", Owner: "0xabc"}
	require.NoError(t, h.StoryEvent(context.Background(), storyEvent(t, events.NFTMinted, "", p)))

	require.Len(t, st.nfts, 1)
	assert.Equal(t, []string{cache.AreaNFTs, cache.AreaCompendium}, areas.deleted)
	envs := pub.published()
	require.Len(t, envs, 1)
	assert.False(t, envs[0].Scoped())
}

func TestStoryEvent_AnnouncementIsForwardedOnly(t *testing.T) {
	h, st, pub, areas := newHandlers()

	p := events.AnnouncementPayload{Message: "maintenance at 22h"}
	require.NoError(t, h.StoryEvent(context.Background(), storyEvent(t, events.Announcement, "", p)))

	assert.Empty(t, st.chapters)
	assert.Empty(t, areas.deleted)
	envs := pub.published()
	require.Len(t, envs, 1)
	assert.Equal(t, events.Announcement, envs[0].Event)
	assert.False(t, envs[0].Scoped())
}

func TestStoryEvent_Unknown(t *testing.T) {
	h, _, pub, _ := newHandlers()
	err := h.StoryEvent(context.Background(), storyEvent(t, "chapter:deleted", "s1", map[string]string{}))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, pub.published())
}

func TestForwardEnvelope_KeepsProducerTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := ForwardEnvelope(events.StoryEvent{Event: events.BettingClosingSoon, PoolID: "p1", Ts: ts}, fixedNow)
	assert.Equal(t, ts, env.Ts)
	assert.Equal(t, "p1", env.PoolID)
	assert.True(t, env.Scoped())
}
