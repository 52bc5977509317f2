// Package live mantém a conexão de atualizações ao vivo com o live-gateway.
//
// A entrega é no máximo uma vez: eventos perdidos durante uma desconexão não são
// reenviados, e o consumidor deve reconciliar relendo o cache remoto.
package live

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// Config da conexão. BaseURL é o prefixo HTTP do gateway (ex: http://host/live);
// o websocket usa BaseURL+"/ws" e o polling BaseURL+"/poll".
type Config struct {
	BaseURL string
	Token   string // bearer opcional

	MinBackoff time.Duration
	MaxBackoff time.Duration

	DisableWebsocket bool
	DisablePolling   bool

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

type state int32

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type topic struct {
	kind string // "story" | "pool"
	id   string
}

type handler struct {
	name string
	fn   func(Event)
}

// scopedSub: mu serializa o subscribe e o unsubscribe da mesma assinatura, que
// são enviados fora de c.mu
type scopedSub struct {
	topic topic

	mu     sync.Mutex
	sentOn session // sessão que confirmou o recebimento do subscribe
	closed bool
}

// Conn é a conexão ao vivo do processo. Construir com New, rodar com Run e
// repassar por referência aos consumidores.
type Conn struct {
	cfg Config
	log *zap.Logger

	mu           sync.Mutex
	sess         session
	handlers     map[string]map[*handler]struct{}
	connWatchers map[*func(bool)]struct{}
	scoped       map[*scopedSub]struct{}
	topics       map[topic]int

	st      atomic.Int32
	sent    atomic.Int64 // mensagens enviadas ao servidor
	dropped atomic.Int64 // eventos com escopo sem assinatura ativa
}

func New(cfg Config, log *zap.Logger) *Conn {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 15 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 40 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	}
	return &Conn{
		cfg:          cfg,
		log:          logger.OrNop(log).Named("live"),
		handlers:     make(map[string]map[*handler]struct{}),
		connWatchers: make(map[*func(bool)]struct{}),
		scoped:       make(map[*scopedSub]struct{}),
		topics:       make(map[topic]int),
	}
}

// Connected é o único estado exposto ao consumidor.
func (c *Conn) Connected() bool { return state(c.st.Load()) == stateConnected }

// Dropped conta eventos com escopo descartados por falta de assinatura.
func (c *Conn) Dropped() int64 { return c.dropped.Load() }

// Run conecta e reconecta até ctx terminar. Desconexões nunca viram erro para o chamador.
func (c *Conn) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setState(stateDisconnected)
			return
		}

		c.setState(stateConnecting)
		sess, err := c.open(ctx)
		if err != nil {
			attempt++
			c.log.Debug("live connect failed", zap.Int("attempt", attempt), zap.Error(err))
			c.setState(stateDisconnected)
			if !sleepCtx(ctx, c.backoff(attempt)) {
				return
			}
			continue
		}
		attempt = 0

		c.attach(sess)
		err = c.readLoop(ctx, sess)
		c.detach(sess)
		_ = sess.Close()

		if ctx.Err() != nil {
			c.setState(stateDisconnected)
			return
		}
		c.log.Info("live connection lost", zap.String("transport", sess.Transport()), zap.Error(err))
		if !sleepCtx(ctx, c.backoff(1)) {
			return
		}
	}
}

// open tenta websocket e, se falhar, cai para polling
func (c *Conn) open(ctx context.Context) (session, error) {
	var wsErr error
	if !c.cfg.DisableWebsocket {
		s, err := dialWS(ctx, c.cfg)
		if err == nil {
			return s, nil
		}
		wsErr = err
		c.log.Debug("websocket unavailable", zap.Error(err))
	}
	if c.cfg.DisablePolling {
		return nil, wsErr
	}
	ps, err := openPoll(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func (c *Conn) readLoop(ctx context.Context, sess session) error {
	// Recv do websocket não observa ctx; fechar a sessão destrava a leitura
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	for {
		env, err := sess.Recv(ctx)
		if err != nil {
			return err
		}
		c.dispatch(env)
	}
}

// attach publica a sessão e reenvia as assinaturas ativas. Assinaturas criadas
// depois de publicada a sessão se enviam sozinhas e não são repetidas aqui.
func (c *Conn) attach(sess session) {
	c.mu.Lock()
	c.sess = sess
	subs := make([]*scopedSub, 0, len(c.scoped))
	for sub := range c.scoped {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed && sub.sentOn != sess {
			if err := c.send(sess, subscribeMsg(sub.topic)); err != nil {
				sub.mu.Unlock()
				return
			}
			sub.sentOn = sess
		}
		sub.mu.Unlock()
	}

	c.log.Info("live connected", zap.String("transport", sess.Transport()))
	c.setState(stateConnected)
}

func (c *Conn) detach(sess session) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
	c.setState(stateDisconnected)
}

func (c *Conn) setState(s state) {
	prev := state(c.st.Swap(int32(s)))
	if (prev == stateConnected) == (s == stateConnected) {
		return
	}

	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.connWatchers))
	for f := range c.connWatchers {
		fns = append(fns, *f)
	}
	c.mu.Unlock()

	connected := s == stateConnected
	for _, f := range fns {
		c.safeCall("connectivity", func() { f(connected) })
	}
}

// dispatch roteia um envelope. Eventos com escopo só são entregues se alguma
// das suas assinaturas (história ou pool) estiver ativa.
func (c *Conn) dispatch(env events.Envelope) {
	if env.Event == "" || env.Event == "pong" {
		return
	}

	c.mu.Lock()
	if env.Scoped() && !c.routableLocked(env) {
		c.mu.Unlock()
		c.dropped.Add(1)
		c.log.Debug("unrouted live event",
			zap.String("event", env.Event),
			zap.String("story_id", env.StoryID),
			zap.String("pool_id", env.PoolID),
		)
		return
	}
	hs := make([]*handler, 0, len(c.handlers[env.Event]))
	for h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	ev := fromEnvelope(env)
	for _, h := range hs {
		c.safeCall(env.Event, func() { h.fn(ev) })
	}
}

func (c *Conn) routableLocked(env events.Envelope) bool {
	if env.StoryID != "" && c.topics[topic{kind: "story", id: env.StoryID}] > 0 {
		return true
	}
	return env.PoolID != "" && c.topics[topic{kind: "pool", id: env.PoolID}] > 0
}

// safeCall impede que um handler com panic derrube o loop de leitura
func (c *Conn) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("live handler panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	fn()
}

// send não pode ser chamado com c.mu. Uma falha encerra a sessão: o servidor
// pode ter perdido a mensagem, e só uma sessão nova (com reenvio das assinaturas
// em attach) volta a um estado conhecido.
func (c *Conn) send(sess session, msg events.ClientMsg) error {
	if err := sess.Send(msg); err != nil {
		c.log.Info("live send failed, dropping session",
			zap.String("type", msg.Type), zap.String("transport", sess.Transport()), zap.Error(err))
		_ = sess.Close()
		return err
	}
	c.sent.Add(1)
	return nil
}

func (c *Conn) backoff(attempt int) time.Duration {
	d := c.cfg.MinBackoff
	for i := 1; i < attempt && d < c.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > c.cfg.MaxBackoff {
		d = c.cfg.MaxBackoff
	}
	// jitter de até 25%
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func subscribeMsg(t topic) events.ClientMsg {
	if t.kind == "story" {
		return events.ClientMsg{Type: events.MsgSubscribeStory, ID: t.id}
	}
	return events.ClientMsg{Type: events.MsgSubscribePool, ID: t.id}
}

func unsubscribeMsg(t topic) events.ClientMsg {
	if t.kind == "story" {
		return events.ClientMsg{Type: events.MsgUnsubscribeStory, ID: t.id}
	}
	return events.ClientMsg{Type: events.MsgUnsubscribePool, ID: t.id}
}
