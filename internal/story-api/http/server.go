package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/story-api/repo"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// Reader são as leituras do banco
type Reader interface {
	ListStories(ctx context.Context, f api.StoryFilter) ([]api.Story, error)
	GetStory(ctx context.Context, id string) (api.Story, error)
	ListChapters(ctx context.Context, storyID string) ([]api.Chapter, error)
	GetChapter(ctx context.Context, id string) (api.Chapter, error)
	ListOutcomes(ctx context.Context, chapterID string) ([]api.Outcome, error)
	ListActivePools(ctx context.Context) ([]api.Pool, error)
	GetPool(ctx context.Context, id string) (api.Pool, error)
	ListEntities(ctx context.Context, category string) ([]api.Entity, error)
	GetEntity(ctx context.Context, id string) (api.Entity, error)
	Leaderboard(ctx context.Context, limit int) ([]api.LeaderboardEntry, error)
	ListNFTs(ctx context.Context, owner string) ([]api.NFT, error)
	ListUserBets(ctx context.Context, address string) ([]api.Bet, error)
	UserStats(ctx context.Context, address string) (api.UserStats, error)
}

type BetStore interface {
	BetTarget(ctx context.Context, outcomeID string) (repo.BetTarget, error)
	CreatePendingBet(ctx context.Context, b repo.NewBet) (api.Bet, error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, address string) (api.User, error)
	GetUser(ctx context.Context, address string) (api.User, error)
}

// ReadCache guarda leituras não-live (histórias, capítulos, compêndio...)
type ReadCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

type NonceStore interface {
	Issue(ctx context.Context, address string) (string, error)
	Consume(ctx context.Context, address string) (string, error)
}

type TokenIssuer interface {
	Issue(address string) (string, error)
	Middleware(next http.Handler) http.Handler
}

type BetPublisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// API expõe as leituras, o login por carteira e o envio de apostas
type API struct {
	Log       *zap.Logger
	Reader    Reader
	Bets      BetStore
	Users     UserStore
	Cache     ReadCache
	Nonces    NonceStore
	Auth      TokenIssuer
	Publisher BetPublisher
	Metrics   *Metrics

	AllowedTokens map[string]struct{} // em maiúsculas
}

// Metrics das requisições por rota e status
type Metrics struct {
	Requests *prometheus.CounterVec
	Bets     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "story_api_http_requests_total", Help: "requisições por rota e status",
		}, []string{"route", "status"}),
		Bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "story_api_bets_total", Help: "apostas por resultado",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Bets)
	}
	return m
}

// TokenSet normaliza a lista de tokens aceitos
func TokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, a.countRequests)

	r.Get("/v1/stories", a.listStories)
	r.Get("/v1/stories/{id}", a.getStory)
	r.Get("/v1/stories/{id}/chapters", a.listChapters)
	r.Get("/v1/chapters/{id}", a.getChapter)
	r.Get("/v1/chapters/{id}/outcomes", a.listOutcomes)
	r.Get("/v1/pools/active", a.listActivePools)
	r.Get("/v1/pools/{id}", a.getPool)
	r.Get("/v1/compendium", a.listEntities)
	r.Get("/v1/compendium/{id}", a.getEntity)
	r.Get("/v1/leaderboard", a.leaderboard)
	r.Get("/v1/nfts", a.listNFTs)
	r.Get("/v1/users/{address}/bets", a.listUserBets)
	r.Get("/v1/users/{address}/stats", a.userStats)

	r.Get("/auth/nonce", a.nonce)
	r.Post("/auth/verify", a.verify)

	r.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware)
		r.Get("/auth/me", a.me)
		r.Post("/v1/bets", a.placeBet)
	})
	return r
}

func (a *API) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if a.Metrics == nil {
			return
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.Metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

// fail traduz erros do repositório em status HTTP
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
