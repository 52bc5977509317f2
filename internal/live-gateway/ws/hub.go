package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// client é qualquer assinante do hub: conexão websocket ou sessão de polling.
// send nunca bloqueia; false indica que a mensagem foi descartada.
type client interface {
	send(msg json.RawMessage) bool
	transport() string
}

// Metrics do canal ao vivo
type Metrics struct {
	Clients   *prometheus.GaugeVec
	Delivered prometheus.Counter
	Dropped   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "live_gateway_clients", Help: "clientes conectados por transporte",
		}, []string{"transport"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_gateway_messages_delivered_total", Help: "mensagens entregues a clientes",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_gateway_messages_dropped_total", Help: "mensagens descartadas por cliente lento",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Clients, m.Delivered, m.Dropped)
	}
	return m
}

// Hub gerencia os clientes ao vivo e suas assinaturas de história e pool.
// Cada cliente guarda um contador por tópico: subscribes repetidos exigem o mesmo
// número de unsubscribes até o cliente sair do tópico.
type Hub struct {
	log      *zap.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	polls    *pollSessions

	mu      sync.RWMutex
	clients map[client]map[string]int      // cliente -> tópico -> contagem
	subs    map[string]map[client]struct{} // tópico -> clientes
}

// Options do hub. Zero values usam os defaults de produção.
type Options struct {
	AllowOrigin func(r *http.Request) bool
	PollWait    time.Duration // espera máxima de um GET de polling
	PollIdle    time.Duration // sessão sem GET por mais que isso expira
	Metrics     *Metrics
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(opts Options, log *zap.Logger) *Hub {
	if opts.PollWait <= 0 {
		opts.PollWait = 25 * time.Second
	}
	if opts.PollIdle <= 0 {
		opts.PollIdle = 60 * time.Second
	}
	h := &Hub{
		log:      logger.OrNop(log).Named("hub"),
		metrics:  opts.Metrics,
		upgrader: websocket.Upgrader{CheckOrigin: opts.AllowOrigin},
		clients:  make(map[client]map[string]int),
		subs:     make(map[string]map[client]struct{}),
	}
	h.polls = newPollSessions(h, opts.PollWait, opts.PollIdle)
	return h
}

// Router expõe o websocket e o fallback de polling sob /live
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/live", func(r chi.Router) {
		r.Get("/ws", h.HandleWS)
		r.Post("/poll/open", h.polls.open)
		r.Get("/poll", h.polls.poll)
		r.Post("/poll/send", h.polls.receive)
		r.Post("/poll/close", h.polls.close)
	})
	return r
}

func topicKey(kind, id string) string { return kind + ":" + id }

func (h *Hub) register(c client) {
	h.mu.Lock()
	h.clients[c] = make(map[string]int)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.Clients.WithLabelValues(c.transport()).Inc()
	}
}

// unregister remove o cliente de todas as assinaturas
func (h *Hub) unregister(c client) {
	h.mu.Lock()
	topics, ok := h.clients[c]
	if ok {
		for t := range topics {
			h.removeLocked(t, c)
		}
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.Clients.WithLabelValues(c.transport()).Dec()
	}
}

func (h *Hub) removeLocked(topic string, c client) {
	if set, ok := h.subs[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

// handle aplica uma mensagem do cliente
func (h *Hub) handle(c client, msg events.ClientMsg) {
	if msg.Type == events.MsgPing {
		c.send(pong)
		return
	}
	if msg.ID == "" {
		return
	}
	switch msg.Type {
	case events.MsgSubscribeStory:
		h.subscribe(c, topicKey("story", msg.ID))
	case events.MsgSubscribePool:
		h.subscribe(c, topicKey("pool", msg.ID))
	case events.MsgUnsubscribeStory:
		h.unsubscribe(c, topicKey("story", msg.ID))
	case events.MsgUnsubscribePool:
		h.unsubscribe(c, topicKey("pool", msg.ID))
	default:
		h.log.Debug("unknown client message", zap.String("type", msg.Type))
	}
}

var pong = json.RawMessage(`{"event":"pong"}`)

func (h *Hub) subscribe(c client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics, ok := h.clients[c]
	if !ok {
		return
	}
	topics[topic]++
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[client]struct{})
		h.subs[topic] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unsubscribe(c client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics, ok := h.clients[c]
	if !ok || topics[topic] == 0 {
		return
	}
	if topics[topic]--; topics[topic] == 0 {
		delete(topics, topic)
		h.removeLocked(topic, c)
	}
}

// Broadcast entrega o envelope uma única vez a cada cliente interessado.
// Sem escopo vai para todos; com escopo vai para quem assina a história ou o pool.
func (h *Hub) Broadcast(env events.Envelope) int {
	b, err := json.Marshal(env)
	if err != nil {
		h.log.Warn("marshal envelope", zap.String("event", env.Event), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	var targets []client
	if !env.Scoped() {
		targets = make([]client, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		seen := make(map[client]struct{})
		if env.StoryID != "" {
			for c := range h.subs[topicKey("story", env.StoryID)] {
				seen[c] = struct{}{}
			}
		}
		if env.PoolID != "" {
			for c := range h.subs[topicKey("pool", env.PoolID)] {
				seen[c] = struct{}{}
			}
		}
		targets = make([]client, 0, len(seen))
		for c := range seen {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.send(b) {
			delivered++
		} else if h.metrics != nil {
			h.metrics.Dropped.Inc()
		}
	}
	if h.metrics != nil {
		h.metrics.Delivered.Add(float64(delivered))
	}
	return delivered
}

// Close desconecta todos os clientes (shutdown)
func (h *Hub) Close() {
	h.mu.RLock()
	cs := make([]client, 0, len(h.clients))
	for c := range h.clients {
		cs = append(cs, c)
	}
	h.mu.RUnlock()

	for _, c := range cs {
		if cl, ok := c.(interface{ close() }); ok {
			cl.close()
		}
		h.unregister(c)
	}
}
