package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

const pollQueueMax = 256

// pollClient acumula mensagens entre dois GETs de long-polling
type pollClient struct {
	id string

	mu       sync.Mutex
	queue    []json.RawMessage
	waiting  int
	lastSeen time.Time
	closed   bool
	notify   chan struct{}
}

func (c *pollClient) transport() string { return "polling" }

func (c *pollClient) send(msg json.RawMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.queue) >= pollQueueMax {
		return false
	}
	c.queue = append(c.queue, msg)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *pollClient) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// drain devolve o que estiver na fila, esperando até wait por alguma mensagem
func (c *pollClient) drain(ctx context.Context, wait time.Duration, now time.Time) []json.RawMessage {
	c.mu.Lock()
	c.waiting++
	c.lastSeen = now
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.waiting--
		c.lastSeen = time.Now()
		c.mu.Unlock()
	}()

	t := time.NewTimer(wait)
	defer t.Stop()
	for {
		c.mu.Lock()
		if len(c.queue) > 0 || c.closed {
			out := c.queue
			c.queue = nil
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			return nil
		case <-c.notify:
		}
	}
}

func (c *pollClient) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting > 0 {
		return 0
	}
	return now.Sub(c.lastSeen)
}

type pollSessions struct {
	hub  *Hub
	wait time.Duration
	idle time.Duration

	mu       sync.Mutex
	sessions map[string]*pollClient
}

func newPollSessions(h *Hub, wait, idle time.Duration) *pollSessions {
	return &pollSessions{hub: h, wait: wait, idle: idle, sessions: make(map[string]*pollClient)}
}

func (p *pollSessions) get(r *http.Request) (*pollClient, bool) {
	sid := r.URL.Query().Get("sid")
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.sessions[sid]
	return c, ok
}

func (p *pollSessions) remove(c *pollClient) {
	p.mu.Lock()
	delete(p.sessions, c.id)
	p.mu.Unlock()
	c.close()
	p.hub.unregister(c)
}

func (p *pollSessions) open(w http.ResponseWriter, _ *http.Request) {
	c := &pollClient{id: uuid.NewString(), lastSeen: time.Now(), notify: make(chan struct{}, 1)}
	p.mu.Lock()
	p.sessions[c.id] = c
	p.mu.Unlock()
	p.hub.register(c)

	writeJSON(w, http.StatusOK, map[string]string{"sid": c.id})
}

func (p *pollSessions) poll(w http.ResponseWriter, r *http.Request) {
	c, ok := p.get(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return
	}
	msgs := c.drain(r.Context(), p.wait, time.Now())
	if msgs == nil {
		msgs = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (p *pollSessions) receive(w http.ResponseWriter, r *http.Request) {
	c, ok := p.get(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session"})
		return
	}
	var msg events.ClientMsg
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid message"})
		return
	}
	p.hub.handle(c, msg)
	w.WriteHeader(http.StatusNoContent)
}

func (p *pollSessions) close(w http.ResponseWriter, r *http.Request) {
	if c, ok := p.get(r); ok {
		p.remove(c)
	}
	w.WriteHeader(http.StatusNoContent)
}

// expire remove sessões sem GET há mais que idle
func (p *pollSessions) expire(now time.Time) int {
	p.mu.Lock()
	var stale []*pollClient
	for _, c := range p.sessions {
		if c.idleSince(now) > p.idle {
			stale = append(stale, c)
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		p.remove(c)
	}
	if len(stale) > 0 {
		p.hub.log.Debug("poll sessions expired", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// RunJanitor expira sessões de polling abandonadas até ctx terminar
func (h *Hub) RunJanitor(ctx context.Context) {
	t := time.NewTicker(h.polls.idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			h.polls.expire(now)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
