package wsproto

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler is the HTTP entry point, wiring each upgraded connection into a
// Server via the Conn interface.
type Handler struct {
	cfg ServerConfig
}

// NewHandler creates an HTTP handler sharing cfg across every connection.
func NewHandler(cfg ServerConfig) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wsConn := newWSConn(conn)
	srv := NewServer(h.cfg, wsConn)
	srv.Welcome()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "error", err)
			return
		}
		switch msgType {
		case websocket.TextMessage:
			srv.HandleText(ctx, data)
		case websocket.BinaryMessage:
			srv.HandleBinary(ctx, data)
		}
	}
}

// wsConn adapts a *websocket.Conn to the Conn interface, guarding writes
// with a mutex since gorilla/websocket connections are not safe for
// concurrent writers.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) SendEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}
