package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// session é uma conexão estabelecida por um dos transportes
type session interface {
	Send(msg events.ClientMsg) error
	Recv(ctx context.Context) (events.Envelope, error)
	Close() error
	Transport() string
}

var errSessionClosed = errors.New("live: session closed")

const (
	wsWriteTimeout = 5 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsPingEvery    = 25 * time.Second
)

// wsSession: canal bidirecional persistente
type wsSession struct {
	conn *websocket.Conn

	wmu       sync.Mutex // gorilla aceita um único escritor por vez
	closeOnce sync.Once
	done      chan struct{}
}

func wsURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func dialWS(ctx context.Context, cfg Config) (*wsSession, error) {
	u, err := wsURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("live: websocket url: %w", err)
	}
	conn, _, err := cfg.Dialer.DialContext(ctx, u, authHeader(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("live: dial websocket: %w", err)
	}
	s := &wsSession{conn: conn, done: make(chan struct{})}
	go s.heartbeat()
	return s, nil
}

func (s *wsSession) Transport() string { return "websocket" }

func (s *wsSession) Send(msg events.ClientMsg) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) Recv(_ context.Context) (events.Envelope, error) {
	var env events.Envelope
	_ = s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	if err := s.conn.ReadJSON(&env); err != nil {
		select {
		case <-s.done:
			return env, errSessionClosed
		default:
		}
		return env, err
	}
	return env, nil
}

func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wmu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.wmu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// heartbeat mantém o read deadline do servidor (e o nosso, via pong) vivo
func (s *wsSession) heartbeat() {
	t := time.NewTicker(wsPingEvery)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.Send(events.ClientMsg{Type: events.MsgPing}); err != nil {
				return
			}
		}
	}
}

// pollSession: fallback por requisições HTTP de long-polling
type pollSession struct {
	cfg  Config
	base string
	sid  string

	mu      sync.Mutex
	pending []events.Envelope

	closeOnce sync.Once
	done      chan struct{}
	stopCtx   context.Context
	stop      context.CancelFunc // interrompe o long-poll em andamento
}

type pollOpenResponse struct {
	SessionID string `json:"sid"`
}

func openPoll(ctx context.Context, cfg Config) (*pollSession, error) {
	base := strings.TrimRight(cfg.BaseURL, "/") + "/poll"
	s := &pollSession{cfg: cfg, base: base, done: make(chan struct{})}
	s.stopCtx, s.stop = context.WithCancel(context.Background())

	var out pollOpenResponse
	if err := s.do(ctx, http.MethodPost, base+"/open", nil, &out); err != nil {
		return nil, fmt.Errorf("live: open poll session: %w", err)
	}
	if out.SessionID == "" {
		return nil, errors.New("live: poll session without id")
	}
	s.sid = out.SessionID
	return s, nil
}

func (s *pollSession) Transport() string { return "polling" }

func (s *pollSession) Send(msg events.ClientMsg) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return s.do(ctx, http.MethodPost, s.base+"/send?sid="+url.QueryEscape(s.sid), msg, nil)
}

func (s *pollSession) Recv(ctx context.Context) (events.Envelope, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			env := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return env, nil
		}
		s.mu.Unlock()

		select {
		case <-s.done:
			return events.Envelope{}, errSessionClosed
		default:
		}

		var batch []events.Envelope
		if err := s.poll(ctx, &batch); err != nil {
			select {
			case <-s.done:
				return events.Envelope{}, errSessionClosed
			default:
			}
			return events.Envelope{}, err
		}
		s.mu.Lock()
		s.pending = append(s.pending, batch...)
		s.mu.Unlock()
	}
}

func (s *pollSession) poll(ctx context.Context, out *[]events.Envelope) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(s.stopCtx, cancel)
	defer unhook()
	return s.do(ctx, http.MethodGet, s.base+"?sid="+url.QueryEscape(s.sid), nil, out)
}

func (s *pollSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.do(ctx, http.MethodPost, s.base+"/close?sid="+url.QueryEscape(s.sid), nil, nil)
	})
	return nil
}

func (s *pollSession) do(ctx context.Context, method, u string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header = authHeader(s.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("live: poll http %d", res.StatusCode)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
