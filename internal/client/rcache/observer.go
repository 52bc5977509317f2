package rcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type listener struct {
	mu     sync.Mutex // serializa as entregas para o mesmo observador
	closed atomic.Bool
	fn     func(v any, err error)
}

func (l *listener) deliver(v any, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return
	}
	l.fn(v, err)
}

// observerSet agrupa os observadores de uma chave e o refresher das chaves live
type observerSet struct {
	key       Key
	fetch     fetchFunc
	listeners map[*listener]struct{}
	stop      context.CancelFunc // refresher; nil para chaves não-live
}

// Observer é o handle devolvido por Watch. Close é idempotente e deve ser
// chamado quando o consumidor deixa de observar (defer obs.Close()).
type Observer struct {
	once sync.Once
	stop func()
}

func (o *Observer) Close() {
	o.once.Do(o.stop)
}

// Watch registra fn para receber o valor da chave agora e a cada atualização
// (refresh periódico, rebusca após invalidação, ou busca de outro consumidor).
// fn roda em goroutines do cache, nunca em paralelo consigo mesma.
// Com a pré-condição não atendida, fn recebe um Result com Skipped e nada é buscado.
func Watch[T any](c *Cache, q Query[T], fn func(Result[T], error)) *Observer {
	if !q.enabled() {
		fn(Result[T]{Skipped: true}, nil)
		return &Observer{stop: func() {}}
	}

	l := &listener{fn: func(v any, err error) {
		if err != nil {
			fn(Result[T]{}, err)
			return
		}
		data, cerr := as[T](q.Key, v)
		if cerr != nil {
			fn(Result[T]{}, cerr)
			return
		}
		fn(Result[T]{Data: data, UpdatedAt: c.opts.Now()}, nil)
	}}

	id := q.Key.String()
	fetch := q.fetcher()

	c.mu.Lock()
	set, ok := c.observers[id]
	if !ok {
		set = &observerSet{key: q.Key, fetch: fetch, listeners: make(map[*listener]struct{})}
		c.observers[id] = set
	}
	set.listeners[l] = struct{}{}
	if q.Live && set.stop == nil && !c.closed {
		rctx, cancel := context.WithCancel(c.ctx)
		set.stop = cancel
		c.wg.Add(1)
		go c.refreshLoop(rctx, q.Key, set.fetch)
	}
	c.mu.Unlock()

	// primeira entrega: do cache se fresco, senão via busca (que notifica todos)
	c.goBackground(func() {
		if v, _, hit := c.lookup(q.Key, q.Live); hit {
			l.deliver(v, nil)
			return
		}
		if _, _, err := c.load(c.ctx, q.Key, q.Live, fetch); err != nil && c.ctx.Err() == nil {
			c.log.Debug("initial fetch failed", zap.String("key", id), zap.Error(err))
		}
	})

	return &Observer{stop: func() {
		l.closed.Store(true)

		c.mu.Lock()
		defer c.mu.Unlock()
		set, ok := c.observers[id]
		if !ok {
			return
		}
		delete(set.listeners, l)
		if len(set.listeners) == 0 {
			if set.stop != nil {
				set.stop()
			}
			delete(c.observers, id)
		}
	}}
}

// Observers retorna quantos observadores ativos a chave tem.
func (c *Cache) Observers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.observers[key.String()]; ok {
		return len(set.listeners)
	}
	return 0
}

func (c *Cache) refreshLoop(ctx context.Context, key Key, fetch fetchFunc) {
	defer c.wg.Done()

	t := time.NewTicker(c.opts.RefreshInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, _, err := c.load(ctx, key, true, fetch); err != nil && ctx.Err() == nil {
				c.log.Warn("background refresh failed", zap.String("key", key.String()), zap.Error(err))
			}
		}
	}
}

func (c *Cache) notify(id string, v any, err error) {
	c.mu.Lock()
	set, ok := c.observers[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	ls := make([]*listener, 0, len(set.listeners))
	for l := range set.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l.deliver(v, err)
	}
}
