package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/quote-gateway/internal/hub"
	"github.com/rickgao/quote-gateway/internal/model"
)

// wsConn is the hub-facing adapter; the assertion keeps the contract visible.
var _ hub.Conn = (*wsConn)(nil)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsMaxMessage   = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway fronts trusted dashboards; origin policy belongs to the
	// proxy in front of it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeMessage is the client → server control frame:
//
//	{"subscribe": [{"type": "crypto", "symbol": "bitcoin"}, ...]}
//
// Each message replaces the connection's entire filter set. Quote updates
// are pushed as bare Quote objects; the only non-Quote frames a client can
// see are the subscribe acknowledgement and error frames, which carry no
// "source" field and are distinguishable by their keys.
type subscribeMessage struct {
	Subscribe []filterWire `json:"subscribe"`
}

type filterWire struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

type ackFrame struct {
	Subscribed int `json:"subscribed"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// wsConn adapts one gorilla connection to the hub's Conn. Writes come from
// two goroutines (the hub's writer and the control loop), so they are
// serialized by a mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// WriteQuote pushes one update as a bare Quote object.
func (c *wsConn) WriteQuote(q model.Quote) error {
	return c.writeJSON(q)
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(wsWriteTimeout))
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

// handleWS upgrades the connection, registers it with the hub, and runs the
// control loop: subscribe messages replace the connection's filter set.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	conn := &wsConn{conn: raw}
	id := s.hub.Register(conn)
	defer s.hub.Unregister(id)

	raw.SetReadLimit(wsMaxMessage)
	raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(conn, stop)

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "subscriber", id, "err", err)
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Subscribe == nil {
			conn.writeJSON(errorFrame{Error: "invalid message: expected a subscribe list"})
			continue
		}

		filters, err := parseFilters(msg.Subscribe)
		if err != nil {
			conn.writeJSON(errorFrame{Error: err.Error()})
			continue
		}
		s.hub.Subscribe(id, filters)
		for _, f := range filters {
			// Subscribing implies interest even before the next
			// refresh tick.
			if f.Symbol != "" {
				s.touch(f.Source, f.Symbol)
			}
		}
		conn.writeJSON(ackFrame{Subscribed: len(filters)})
	}
}

func (s *Server) pingLoop(conn *wsConn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func parseFilters(wires []filterWire) ([]model.Filter, error) {
	filters := make([]model.Filter, 0, len(wires))
	for _, w := range wires {
		source, err := model.ParseSource(w.Type)
		if err != nil {
			return nil, err
		}
		filters = append(filters, model.Filter{Source: source, Symbol: w.Symbol})
	}
	return filters, nil
}
