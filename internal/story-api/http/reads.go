package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/cache"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/walletsig"
)

// cached lê do cache Redis e, em caso de falta, do banco, gravando o resultado.
// Falhas do cache só são registradas: o banco é a fonte da verdade.
func cached[T any](ctx context.Context, a *API, key string, load func(context.Context) (T, error)) (T, error) {
	var v T
	if a.Cache != nil {
		ok, err := a.Cache.Get(ctx, key, &v)
		if err != nil {
			a.Log.Warn("read cache get failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return v, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if a.Cache != nil {
		if err := a.Cache.Set(ctx, key, v); err != nil {
			a.Log.Warn("read cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func intParam(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func respond[T any](a *API, w http.ResponseWriter, r *http.Request, v T, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) listStories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := api.StoryFilter{
		Status: q.Get("status"),
		Genre:  q.Get("genre"),
		Limit:  intParam(r, "limit"),
		Offset: intParam(r, "offset"),
	}
	key := cache.ReadKey(cache.AreaStories, "list", f.Status, f.Genre, strconv.Itoa(f.Limit), strconv.Itoa(f.Offset))
	v, err := cached(r.Context(), a, key, func(ctx context.Context) ([]api.Story, error) {
		return a.Reader.ListStories(ctx, f)
	})
	respond(a, w, r, v, err)
}

func (a *API) getStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaStories, id), func(ctx context.Context) (api.Story, error) {
		return a.Reader.GetStory(ctx, id)
	})
	respond(a, w, r, v, err)
}

func (a *API) listChapters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaChapters, "story", id), func(ctx context.Context) ([]api.Chapter, error) {
		return a.Reader.ListChapters(ctx, id)
	})
	respond(a, w, r, v, err)
}

func (a *API) getChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaChapters, id), func(ctx context.Context) (api.Chapter, error) {
		return a.Reader.GetChapter(ctx, id)
	})
	respond(a, w, r, v, err)
}

// Outcomes e pools mudam a cada aposta: sempre do banco

func (a *API) listOutcomes(w http.ResponseWriter, r *http.Request) {
	v, err := a.Reader.ListOutcomes(r.Context(), chi.URLParam(r, "id"))
	respond(a, w, r, v, err)
}

func (a *API) listActivePools(w http.ResponseWriter, r *http.Request) {
	v, err := a.Reader.ListActivePools(r.Context())
	respond(a, w, r, v, err)
}

func (a *API) getPool(w http.ResponseWriter, r *http.Request) {
	v, err := a.Reader.GetPool(r.Context(), chi.URLParam(r, "id"))
	respond(a, w, r, v, err)
}

func (a *API) listEntities(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaCompendium, "list", category), func(ctx context.Context) ([]api.Entity, error) {
		return a.Reader.ListEntities(ctx, category)
	})
	respond(a, w, r, v, err)
}

func (a *API) getEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaCompendium, id), func(ctx context.Context) (api.Entity, error) {
		return a.Reader.GetEntity(ctx, id)
	})
	respond(a, w, r, v, err)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit")
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaLeaderboard, strconv.Itoa(limit)), func(ctx context.Context) ([]api.LeaderboardEntry, error) {
		return a.Reader.Leaderboard(ctx, limit)
	})
	respond(a, w, r, v, err)
}

func (a *API) listNFTs(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner != "" {
		norm, ok := walletsig.Address(owner)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid owner address")
			return
		}
		owner = norm
	}
	v, err := cached(r.Context(), a, cache.ReadKey(cache.AreaNFTs, owner), func(ctx context.Context) ([]api.NFT, error) {
		return a.Reader.ListNFTs(ctx, owner)
	})
	respond(a, w, r, v, err)
}

func (a *API) userAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr, ok := walletsig.Address(chi.URLParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
	}
	return addr, ok
}

func (a *API) listUserBets(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.userAddress(w, r)
	if !ok {
		return
	}
	v, err := a.Reader.ListUserBets(r.Context(), addr)
	respond(a, w, r, v, err)
}

func (a *API) userStats(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.userAddress(w, r)
	if !ok {
		return
	}
	v, err := a.Reader.UserStats(r.Context(), addr)
	respond(a, w, r, v, err)
}
