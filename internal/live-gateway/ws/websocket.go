package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second // o cliente manda ping a cada 25s
	sendBuffer   = 64
)

// wsClient escreve por uma única goroutine; send só enfileira
type wsClient struct {
	conn *websocket.Conn
	out  chan json.RawMessage

	once sync.Once
	done chan struct{}
}

func (c *wsClient) transport() string { return "websocket" }

func (c *wsClient) send(msg json.RawMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// close só sinaliza; quem fecha a conexão é o writeLoop, depois do close frame
func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsClient) writeLoop() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Cada cliente pode assinar várias histórias e pools; eventos globais chegam sempre.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, out: make(chan json.RawMessage, sendBuffer), done: make(chan struct{})}
	h.register(c)
	go c.writeLoop()

	defer func() {
		h.unregister(c)
		c.close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		var msg events.ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		h.handle(c, msg)
	}
}
