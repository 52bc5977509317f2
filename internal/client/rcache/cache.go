// Package rcache é o cache de leituras remotas do cliente: uma requisição por chave
// em voo, invalidação por prefixo e atualização em segundo plano das chaves "live"
// enquanto houver observadores.
package rcache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/radieske/story-bet-platform/internal/shared/logger"
)

const (
	DefaultRefreshInterval = 30 * time.Second
	DefaultFetchTimeout    = 15 * time.Second
)

// Options configura o Cache. Valores zero usam os defaults.
type Options struct {
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Logger          *zap.Logger
	Now             func() time.Time
}

// Query descreve um recurso remoto.
// Enabled nil equivale a sempre habilitado.
type Query[T any] struct {
	Key     Key
	Fetch   func(ctx context.Context) (T, error)
	Live    bool
	Enabled func() bool
}

func (q Query[T]) enabled() bool { return q.Enabled == nil || q.Enabled() }

func (q Query[T]) fetcher() fetchFunc {
	return func(ctx context.Context) (any, error) { return q.Fetch(ctx) }
}

// Result é o valor entregue ao consumidor.
// Skipped indica que a pré-condição não foi atendida e nada foi buscado.
type Result[T any] struct {
	Data      T
	UpdatedAt time.Time
	FromCache bool
	Skipped   bool
}

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key       Key
	value     any
	hasValue  bool
	updatedAt time.Time
	stale     bool
	live      bool
	epoch     uint64 // geração do cache na última invalidação da entrada
}

type stored struct {
	value any
	at    time.Time
}

// Cache é seguro para uso concorrente. Criar com New e encerrar com Close.
type Cache struct {
	opts Options
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	flights singleflight.Group

	mu        sync.Mutex
	closed    bool
	gen       uint64 // cresce a cada Invalidate/Remove e sobrevive à remoção das entradas
	entries   map[string]*entry
	observers map[string]*observerSet

	waiting atomic.Int64
	fetches atomic.Int64
}

func New(opts Options) *Cache {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		opts:      opts,
		log:       logger.OrNop(opts.Logger).Named("rcache"),
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*entry),
		observers: make(map[string]*observerSet),
	}
}

// Close para os refreshers e aguarda as goroutines de fundo.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Fetches retorna quantas buscas de rede foram iniciadas.
func (c *Cache) Fetches() int64 { return c.fetches.Load() }

// Fetch devolve o valor da chave, do cache quando fresco ou buscando na rede.
// Chamadas concorrentes para a mesma chave compartilham uma única busca; cancelar
// ctx libera o chamador mas não interrompe a busca compartilhada.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (Result[T], error) {
	if !q.enabled() {
		return Result[T]{Skipped: true}, nil
	}
	if v, at, ok := c.lookup(q.Key, q.Live); ok {
		data, err := as[T](q.Key, v)
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{Data: data, UpdatedAt: at, FromCache: true}, nil
	}

	v, at, err := c.load(ctx, q.Key, q.Live, q.fetcher())
	if err != nil {
		return Result[T]{}, err
	}
	data, err := as[T](q.Key, v)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Data: data, UpdatedAt: at}, nil
}

// Peek lê o cache sem ir à rede. Entradas invalidadas também são devolvidas,
// com stale=true, para exibição enquanto a nova busca não termina.
func Peek[T any](c *Cache, key Key) (data T, stale bool, ok bool) {
	c.mu.Lock()
	e, found := c.entries[key.String()]
	if !found || !e.hasValue {
		c.mu.Unlock()
		return data, false, false
	}
	v, stale := e.value, c.staleLocked(e)
	c.mu.Unlock()

	data, err := as[T](key, v)
	if err != nil {
		return data, false, false
	}
	return data, stale, true
}

// Invalidate marca como obsoletas todas as entradas cuja chave começa com prefix.
// A próxima leitura dessas chaves vai à rede; chaves com observadores ativos são
// rebuscadas em segundo plano. Retorna o número de entradas afetadas.
func (c *Cache) Invalidate(prefix Key) int {
	type refetch struct {
		key   Key
		live  bool
		fetch fetchFunc
	}
	var todo []refetch

	c.mu.Lock()
	c.gen++
	n := 0
	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.stale = true
		e.epoch = c.gen
		n++
		if set, ok := c.observers[id]; ok && len(set.listeners) > 0 {
			todo = append(todo, refetch{key: e.key, live: e.live, fetch: set.fetch})
		}
	}
	c.mu.Unlock()

	for _, r := range todo {
		r := r
		c.goBackground(func() {
			if _, _, err := c.load(c.ctx, r.key, r.live, r.fetch); err != nil && c.ctx.Err() == nil {
				c.log.Debug("refetch after invalidation failed", zap.String("key", r.key.String()), zap.Error(err))
			}
		})
	}

	if n > 0 {
		c.log.Debug("invalidated", zap.String("prefix", prefix.String()), zap.Int("entries", n))
	}
	return n
}

// Remove descarta as entradas do prefixo sem rebuscar (ex: logout).
// Buscas em voo iniciadas antes do Remove não repovoam as chaves removidas.
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	c.gen++
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()
}

func (c *Cache) lookup(key Key, live bool) (any, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasValue {
		return nil, time.Time{}, false
	}
	e.live = e.live || live
	if c.staleLocked(e) {
		return nil, time.Time{}, false
	}
	return e.value, e.updatedAt, true
}

// staleLocked: invalidada, ou live e mais velha que o intervalo de refresh
func (c *Cache) staleLocked(e *entry) bool {
	if e.stale {
		return true
	}
	return e.live && c.opts.Now().Sub(e.updatedAt) >= c.opts.RefreshInterval
}

// load executa (ou se junta a) a busca em voo da chave na época atual.
func (c *Cache) load(ctx context.Context, key Key, live bool, fetch fetchFunc) (any, time.Time, error) {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		// nasce na geração atual: não compartilha voo com buscas anteriores a um Remove
		e = &entry{key: key, epoch: c.gen}
		c.entries[id] = e
	}
	e.live = e.live || live
	epoch := e.epoch
	c.mu.Unlock()

	// a época faz parte da chave do voo: uma busca iniciada antes de uma
	// invalidação não é reaproveitada por leituras posteriores a ela
	flightKey := id + "#" + strconv.FormatUint(epoch, 10)
	ch := c.flights.DoChan(flightKey, func() (any, error) {
		c.fetches.Add(1)
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()

		v, err := fetch(fctx)
		if err != nil {
			c.notify(id, nil, err)
			return nil, err
		}
		at := c.store(key, epoch, v)
		return stored{value: v, at: at}, nil
	})

	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	select {
	case <-ctx.Done():
		return nil, time.Time{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, time.Time{}, r.Err
		}
		s := r.Val.(stored)
		return s.value, s.at, nil
	}
}

// store grava o resultado. Se a entrada foi invalidada ou removida durante a
// busca, o valor só volta para quem esperava por ele e o cache não muda.
func (c *Cache) store(key Key, epoch uint64, v any) time.Time {
	id := key.String()
	now := c.opts.Now()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.epoch != epoch {
		c.mu.Unlock()
		return now
	}
	e.value = v
	e.hasValue = true
	e.updatedAt = now
	e.stale = false
	c.mu.Unlock()

	c.notify(id, v, nil)
	return now
}

func (c *Cache) goBackground(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func as[T any](key Key, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("rcache: key %s holds %T, not %T", key.String(), v, zero)
	}
	return t, nil
}
