// Package reads expõe as leituras do story-api através do cache remoto.
package reads

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
)

type StoryFilter = api.StoryFilter

// Getter é a parte do apiclient usada pelas leituras
type Getter interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

type Client struct {
	api   Getter
	cache *rcache.Cache
	log   *zap.Logger
}

func New(g Getter, cache *rcache.Cache, log *zap.Logger) *Client {
	return &Client{api: g, cache: cache, log: logger.OrNop(log).Named("reads")}
}

func (c *Client) Cache() *rcache.Cache { return c.cache }

func get[T any](g Getter, path string, q url.Values) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var out T
		err := g.Get(ctx, path, q, &out)
		return out, err
	}
}

func notEmpty(s string) func() bool { return func() bool { return s != "" } }

func esc(s string) string { return url.PathEscape(s) }

// ---- queries ----

func (c *Client) StoriesQuery(f StoryFilter) rcache.Query[[]api.Story] {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Genre != "" {
		q.Set("genre", f.Genre)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return rcache.Query[[]api.Story]{Key: StoriesKey(f), Fetch: get[[]api.Story](c.api, "/v1/stories", q)}
}

func (c *Client) StoryQuery(id string) rcache.Query[api.Story] {
	return rcache.Query[api.Story]{
		Key:     StoryKey(id),
		Fetch:   get[api.Story](c.api, "/v1/stories/"+esc(id), nil),
		Enabled: notEmpty(id),
	}
}

func (c *Client) ChaptersQuery(storyID string) rcache.Query[[]api.Chapter] {
	return rcache.Query[[]api.Chapter]{
		Key:     StoryChaptersKey(storyID),
		Fetch:   get[[]api.Chapter](c.api, "/v1/stories/"+esc(storyID)+"/chapters", nil),
		Enabled: notEmpty(storyID),
	}
}

func (c *Client) ChapterQuery(id string) rcache.Query[api.Chapter] {
	return rcache.Query[api.Chapter]{
		Key:     ChapterKey(id),
		Fetch:   get[api.Chapter](c.api, "/v1/chapters/"+esc(id), nil),
		Enabled: notEmpty(id),
	}
}

// OutcomesQuery é live: os totais mudam enquanto o pool está aberto
func (c *Client) OutcomesQuery(chapterID string) rcache.Query[[]api.Outcome] {
	return rcache.Query[[]api.Outcome]{
		Key:     OutcomesKey(chapterID),
		Fetch:   get[[]api.Outcome](c.api, "/v1/chapters/"+esc(chapterID)+"/outcomes", nil),
		Live:    true,
		Enabled: notEmpty(chapterID),
	}
}

func (c *Client) ActivePoolsQuery() rcache.Query[[]api.Pool] {
	return rcache.Query[[]api.Pool]{
		Key:   ActivePoolsKey(),
		Fetch: get[[]api.Pool](c.api, "/v1/pools/active", nil),
		Live:  true,
	}
}

func (c *Client) PoolQuery(id string) rcache.Query[api.Pool] {
	return rcache.Query[api.Pool]{
		Key:     PoolKey(id),
		Fetch:   get[api.Pool](c.api, "/v1/pools/"+esc(id), nil),
		Live:    true,
		Enabled: notEmpty(id),
	}
}

func (c *Client) CompendiumQuery(category string) rcache.Query[[]api.Entity] {
	var q url.Values
	if category != "" {
		q = url.Values{"category": {category}}
	}
	return rcache.Query[[]api.Entity]{Key: CompendiumKey(category), Fetch: get[[]api.Entity](c.api, "/v1/compendium", q)}
}

func (c *Client) EntityQuery(id string) rcache.Query[api.Entity] {
	return rcache.Query[api.Entity]{
		Key:     EntityKey(id),
		Fetch:   get[api.Entity](c.api, "/v1/compendium/"+esc(id), nil),
		Enabled: notEmpty(id),
	}
}

func (c *Client) LeaderboardQuery(limit int) rcache.Query[[]api.LeaderboardEntry] {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	return rcache.Query[[]api.LeaderboardEntry]{
		Key:   LeaderboardKey(limit),
		Fetch: get[[]api.LeaderboardEntry](c.api, "/v1/leaderboard", q),
	}
}

func (c *Client) NFTsQuery(owner string) rcache.Query[[]api.NFT] {
	return rcache.Query[[]api.NFT]{
		Key:     NFTsKey(owner),
		Fetch:   get[[]api.NFT](c.api, "/v1/nfts", url.Values{"owner": {strings.ToLower(owner)}}),
		Enabled: notEmpty(owner),
	}
}

// UserBetsQuery fica desabilitada sem endereço (usuário não autenticado)
func (c *Client) UserBetsQuery(address string) rcache.Query[[]api.Bet] {
	return rcache.Query[[]api.Bet]{
		Key:     UserBetsKey(address),
		Fetch:   get[[]api.Bet](c.api, "/v1/users/"+esc(strings.ToLower(address))+"/bets", nil),
		Enabled: notEmpty(address),
	}
}

func (c *Client) UserStatsQuery(address string) rcache.Query[api.UserStats] {
	return rcache.Query[api.UserStats]{
		Key:     UserStatsKey(address),
		Fetch:   get[api.UserStats](c.api, "/v1/users/"+esc(strings.ToLower(address))+"/stats", nil),
		Enabled: notEmpty(address),
	}
}

// ---- leituras diretas ----

func data[T any](ctx context.Context, c *rcache.Cache, q rcache.Query[T]) (T, error) {
	res, err := rcache.Fetch(ctx, c, q)
	return res.Data, err
}

func (c *Client) Stories(ctx context.Context, f StoryFilter) ([]api.Story, error) {
	return data(ctx, c.cache, c.StoriesQuery(f))
}

func (c *Client) Story(ctx context.Context, id string) (api.Story, error) {
	return data(ctx, c.cache, c.StoryQuery(id))
}

func (c *Client) Chapters(ctx context.Context, storyID string) ([]api.Chapter, error) {
	return data(ctx, c.cache, c.ChaptersQuery(storyID))
}

func (c *Client) Chapter(ctx context.Context, id string) (api.Chapter, error) {
	return data(ctx, c.cache, c.ChapterQuery(id))
}

func (c *Client) Outcomes(ctx context.Context, chapterID string) ([]api.Outcome, error) {
	return data(ctx, c.cache, c.OutcomesQuery(chapterID))
}

func (c *Client) ActivePools(ctx context.Context) ([]api.Pool, error) {
	return data(ctx, c.cache, c.ActivePoolsQuery())
}

func (c *Client) Pool(ctx context.Context, id string) (api.Pool, error) {
	return data(ctx, c.cache, c.PoolQuery(id))
}

func (c *Client) Compendium(ctx context.Context, category string) ([]api.Entity, error) {
	return data(ctx, c.cache, c.CompendiumQuery(category))
}

func (c *Client) Entity(ctx context.Context, id string) (api.Entity, error) {
	return data(ctx, c.cache, c.EntityQuery(id))
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]api.LeaderboardEntry, error) {
	return data(ctx, c.cache, c.LeaderboardQuery(limit))
}

func (c *Client) NFTs(ctx context.Context, owner string) ([]api.NFT, error) {
	return data(ctx, c.cache, c.NFTsQuery(owner))
}

func (c *Client) UserBets(ctx context.Context, address string) ([]api.Bet, error) {
	return data(ctx, c.cache, c.UserBetsQuery(address))
}

func (c *Client) UserStats(ctx context.Context, address string) (api.UserStats, error) {
	return data(ctx, c.cache, c.UserStatsQuery(address))
}
