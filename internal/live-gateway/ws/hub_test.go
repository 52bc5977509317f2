package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/client/live"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	opts.AllowOrigin = func(*http.Request) bool { return true }
	h := NewHub(opts, zap.NewNop())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *Hub) subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func read(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func env(event, storyID, poolID string) events.Envelope {
	return events.Envelope{Event: event, StoryID: storyID, PoolID: poolID, Data: json.RawMessage(`{}`), Ts: time.Now().UTC()}
}

func TestWS_ScopedDelivery(t *testing.T) {
	h, srv := newTestHub(t, Options{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(events.ClientMsg{Type: events.MsgSubscribePool, ID: "p1"}))
	require.Eventually(t, func() bool { return h.subscribers("pool:p1") == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, h.Broadcast(env(events.BettingUpdate, "", "p2")))
	assert.Equal(t, 1, h.Broadcast(env(events.BettingUpdate, "s1", "p1")))

	got := read(t, conn)
	assert.Equal(t, events.BettingUpdate, got.Event)
	assert.Equal(t, "p1", got.PoolID)

	// evento global chega sem assinatura
	assert.Equal(t, 1, h.Broadcast(env(events.Announcement, "", "")))
	assert.Equal(t, events.Announcement, read(t, conn).Event)
}

func TestWS_SubscriptionsAreCounted(t *testing.T) {
	h, srv := newTestHub(t, Options{})
	conn := dial(t, srv)

	sub := events.ClientMsg{Type: events.MsgSubscribeStory, ID: "s1"}
	unsub := events.ClientMsg{Type: events.MsgUnsubscribeStory, ID: "s1"}

	require.NoError(t, conn.WriteJSON(sub))
	require.NoError(t, conn.WriteJSON(sub))
	require.NoError(t, conn.WriteJSON(unsub))
	// ping serve de barreira: as mensagens são tratadas em ordem
	require.NoError(t, conn.WriteJSON(events.ClientMsg{Type: events.MsgPing}))
	assert.Equal(t, "pong", read(t, conn).Event)

	assert.Equal(t, 1, h.subscribers("story:s1"))

	require.NoError(t, conn.WriteJSON(unsub))
	require.NoError(t, conn.WriteJSON(events.ClientMsg{Type: events.MsgPing}))
	assert.Equal(t, "pong", read(t, conn).Event)

	assert.Equal(t, 0, h.subscribers("story:s1"))
	assert.Equal(t, 0, h.Broadcast(env(events.ChapterUpdate, "s1", "")))
}

func TestBroadcast_StoryAndPoolDeliveredOnce(t *testing.T) {
	h, srv := newTestHub(t, Options{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(events.ClientMsg{Type: events.MsgSubscribeStory, ID: "s1"}))
	require.NoError(t, conn.WriteJSON(events.ClientMsg{Type: events.MsgSubscribePool, ID: "p1"}))
	require.Eventually(t, func() bool {
		return h.subscribers("story:s1") == 1 && h.subscribers("pool:p1") == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, h.Broadcast(env(events.PoolResolvedEvent, "s1", "p1")))
}

func TestWS_DisconnectRemovesClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h, srv := newTestHub(t, Options{Metrics: m})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(events.ClientMsg{Type: events.MsgSubscribePool, ID: "p1"}))
	require.Eventually(t, func() bool { return h.subscribers("pool:p1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Clients.WithLabelValues("websocket")))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.clientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.subscribers("pool:p1"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Clients.WithLabelValues("websocket")))
}

func TestRelay_IgnoresInvalidPayload(t *testing.T) {
	h, srv := newTestHub(t, Options{})
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.clientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.relay("{broken")
	h.relay(`{"storyId":"s1"}`)
	h.relay(`{"event":"announcement","data":{"message":"hi"}}`)

	got := read(t, conn)
	assert.Equal(t, events.Announcement, got.Event)
	assert.JSONEq(t, `{"message":"hi"}`, string(got.Data))
}

func postJSON(t *testing.T, u string, body any) *http.Response {
	t.Helper()
	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}
	res, err := http.Post(u, "application/json", rd)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func getBatch(t *testing.T, u string) (int, []events.Envelope) {
	t.Helper()
	res, err := http.Get(u)
	require.NoError(t, err)
	defer res.Body.Close()
	var batch []events.Envelope
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&batch))
	}
	return res.StatusCode, batch
}

func TestPoll_SessionLifecycle(t *testing.T) {
	h, srv := newTestHub(t, Options{PollWait: 50 * time.Millisecond})
	base := srv.URL + "/live/poll"

	res := postJSON(t, base+"/open", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var opened struct {
		SID string `json:"sid"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&opened))
	require.NotEmpty(t, opened.SID)

	res = postJSON(t, base+"/send?sid="+opened.SID, events.ClientMsg{Type: events.MsgSubscribePool, ID: "p1"})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, 1, h.subscribers("pool:p1"))

	// sem mensagens o GET volta vazio depois da espera
	status, batch := getBatch(t, base+"?sid="+opened.SID)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, batch)

	h.Broadcast(env(events.BettingUpdate, "", "p1"))
	h.Broadcast(env(events.Announcement, "", ""))
	status, batch = getBatch(t, base+"?sid="+opened.SID)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, batch, 2)
	assert.Equal(t, events.BettingUpdate, batch[0].Event)
	assert.Equal(t, events.Announcement, batch[1].Event)

	res = postJSON(t, base+"/close?sid="+opened.SID, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, 0, h.clientCount())

	status, _ = getBatch(t, base+"?sid="+opened.SID)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPoll_WakesOnBroadcast(t *testing.T) {
	h, srv := newTestHub(t, Options{PollWait: 5 * time.Second})
	base := srv.URL + "/live/poll"

	res := postJSON(t, base+"/open", nil)
	var opened struct {
		SID string `json:"sid"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&opened))

	go func() {
		time.Sleep(50 * time.Millisecond)
		h.Broadcast(env(events.Announcement, "", ""))
	}()

	start := time.Now()
	_, batch := getBatch(t, base+"?sid="+opened.SID)
	require.Len(t, batch, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPoll_IdleSessionsExpire(t *testing.T) {
	h, srv := newTestHub(t, Options{PollIdle: time.Minute})

	res := postJSON(t, srv.URL+"/live/poll/open", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, 1, h.clientCount())

	assert.Equal(t, 0, h.polls.expire(time.Now()))
	assert.Equal(t, 1, h.polls.expire(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, h.clientCount())
}

func TestLiveConn_InteropsWithGateway(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  live.Config
	}{
		{"websocket", live.Config{}},
		{"polling", live.Config{DisableWebsocket: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h, srv := newTestHub(t, Options{PollWait: 100 * time.Millisecond})

			cfg := tc.cfg
			cfg.BaseURL = srv.URL + "/live"
			cfg.MinBackoff = 10 * time.Millisecond
			conn := live.New(cfg, nil)

			var (
				mu  sync.Mutex
				got []events.BettingUpdatePayload
			)
			on := live.OnBettingUpdate(conn, func(_ live.Event, p events.BettingUpdatePayload) {
				mu.Lock()
				got = append(got, p)
				mu.Unlock()
			})
			defer on.Close()
			sub := conn.SubscribePool("p1")

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				conn.Run(ctx)
				close(done)
			}()
			defer func() {
				cancel()
				<-done
			}()

			require.Eventually(t, func() bool { return h.subscribers("pool:p1") == 1 }, 2*time.Second, 10*time.Millisecond)

			data, err := json.Marshal(events.BettingUpdatePayload{PoolID: "p1", TotalDeposits: "3"})
			require.NoError(t, err)
			h.Broadcast(events.Envelope{Event: events.BettingUpdate, PoolID: "p1", Data: data, Ts: time.Now()})

			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(got) == 1
			}, 2*time.Second, 10*time.Millisecond)
			mu.Lock()
			assert.Equal(t, "3", got[0].TotalDeposits)
			mu.Unlock()

			sub.Close()
			require.Eventually(t, func() bool { return h.subscribers("pool:p1") == 0 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}
