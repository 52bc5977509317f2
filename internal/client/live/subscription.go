package live

import "sync"

// Subscription é devolvida por toda assinatura. Close é idempotente e deve ser
// chamado em todos os caminhos de saída (defer sub.Close()).
type Subscription interface {
	Close()
}

type handle struct {
	once sync.Once
	fn   func()
}

func (h *handle) Close() { h.once.Do(h.fn) }

func newHandle(fn func()) *handle { return &handle{fn: fn} }

type multi []Subscription

func (m multi) Close() {
	for _, s := range m {
		s.Close()
	}
}

func joinSubs(subs ...Subscription) Subscription { return multi(subs) }

// On registra fn para o evento name.
func (c *Conn) On(name string, fn func(Event)) Subscription {
	h := &handler{name: name, fn: fn}

	c.mu.Lock()
	set, ok := c.handlers[name]
	if !ok {
		set = make(map[*handler]struct{})
		c.handlers[name] = set
	}
	set[h] = struct{}{}
	c.mu.Unlock()

	return newHandle(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[name], h)
		if len(c.handlers[name]) == 0 {
			delete(c.handlers, name)
		}
	})
}

// WatchConnectivity avisa fn a cada transição conectado/desconectado.
func (c *Conn) WatchConnectivity(fn func(connected bool)) Subscription {
	p := &fn
	c.mu.Lock()
	c.connWatchers[p] = struct{}{}
	c.mu.Unlock()

	return newHandle(func() {
		c.mu.Lock()
		delete(c.connWatchers, p)
		c.mu.Unlock()
	})
}

// SubscribeStory registra interesse nos eventos de uma história. Cada chamada
// envia seu próprio subscribe:story e o Close envia exatamente um unsubscribe:story.
func (c *Conn) SubscribeStory(storyID string) Subscription {
	return c.subscribe(topic{kind: "story", id: storyID})
}

// SubscribePool é o equivalente de SubscribeStory para um pool de apostas.
func (c *Conn) SubscribePool(poolID string) Subscription {
	return c.subscribe(topic{kind: "pool", id: poolID})
}

func (c *Conn) subscribe(t topic) Subscription {
	sub := &scopedSub{topic: t}

	sub.mu.Lock()
	c.mu.Lock()
	c.scoped[sub] = struct{}{}
	c.topics[t]++
	sess := c.sess
	c.mu.Unlock()

	if sess != nil && c.send(sess, subscribeMsg(t)) == nil {
		sub.sentOn = sess
	}
	sub.mu.Unlock()

	return newHandle(func() {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		sub.closed = true

		c.mu.Lock()
		delete(c.scoped, sub)
		if c.topics[t]--; c.topics[t] <= 0 {
			delete(c.topics, t)
		}
		cur := c.sess
		c.mu.Unlock()

		// só a sessão que recebeu o subscribe precisa do unsubscribe
		if sub.sentOn != nil && sub.sentOn == cur {
			_ = c.send(cur, unsubscribeMsg(t))
		}
		sub.sentOn = nil
	})
}
