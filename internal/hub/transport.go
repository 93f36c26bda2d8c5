package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
	wsPongWait        = 45 * time.Second
	wsPingInterval    = 30 * time.Second
	wsSendBuffer      = 64
)

// InboundFrame is one client->server message: {e: event_name, d: payload}.
type InboundFrame struct {
	Event   string          `json:"e"`
	Data    json.RawMessage `json:"d"`
	Version int             `json:"_v"`
}

// InboundHandler processes one decoded inbound frame for a session.
type InboundHandler func(sessionID string, frame InboundFrame)

// wsSender adapts a *websocket.Conn to the Sender interface. Writes are
// serialized through a single writer goroutine draining a buffered
// channel, the conventional way to share one gorilla/websocket connection
// between the hub (producer) and the socket (consumer).
type wsSender struct {
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func newWSSender(conn *websocket.Conn) *wsSender {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsSender{conn: conn, send: make(chan []byte, wsSendBuffer), ctx: ctx, cancel: cancel}
}

func (s *wsSender) Send(frame []byte) error {
	select {
	case s.send <- frame:
		return nil
	case <-s.ctx.Done():
		return errSendTimeout
	}
}

func (s *wsSender) Close() error {
	s.cancel()
	return s.conn.Close()
}

func (s *wsSender) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Transport upgrades HTTP connections to websockets and wires them into a
// Hub; it is the single bidirectional message transport the hub binds to.
type Transport struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	onInbound InboundHandler
	caps      []string
	logger    *slog.Logger
}

// NewTransport builds a websocket transport bound to hub. onInbound is
// invoked for every decoded client frame (typically routed to C9).
func NewTransport(h *Hub, caps []string, onInbound InboundHandler, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		onInbound: onInbound,
		caps:      caps,
		logger:    logger.With("component", "hub-transport"),
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// it disconnects; Connect/Disconnect bracket the session's lifetime.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sender := newWSSender(conn)
	go sender.writeLoop()

	sessionID := t.hub.Connect(sender, t.caps)
	defer t.hub.Disconnect(sessionID)

	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame InboundFrame
		if err := Decode(raw, &frame); err != nil {
			// fall back to plain (unabbreviated, uncompressed) JSON for
			// clients that never optimize their outbound frames.
			if err := json.Unmarshal(raw, &frame); err != nil {
				t.logger.Debug("dropping malformed frame", "session", sessionID, "error", err)
				continue
			}
		}
		if t.onInbound != nil {
			t.onInbound(sessionID, frame)
		}
	}
}
