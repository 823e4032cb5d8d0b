package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// replayDepth bounds the backlog a late websocket client receives.
const replayDepth = 32

// hub fans run events out to every connected websocket client. Clients that
// connect mid-run first receive the events already published, so a watcher
// opened after POST /api/login still sees the whole run.
type hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	backlog    [][]byte
	backlogRun string
	logger     *slog.Logger
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients:    map[*client]bool{},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			for _, msg := range h.backlog {
				h.deliver(c, msg)
			}
		case c := <-h.unregister:
			h.drop(c)
		case msg := <-h.broadcast:
			h.remember(msg)
			for c := range h.clients {
				h.deliver(c, msg)
			}
		case <-h.done:
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// deliver hands msg to c, disconnecting c if its queue is full.
func (h *hub) deliver(c *client, msg []byte) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("ws client too slow; disconnecting")
		h.drop(c)
	}
}

func (h *hub) drop(c *client) {
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// remember appends msg to the replay backlog, which only ever holds the
// most recent run.
func (h *hub) remember(msg []byte) {
	if id := runIDOf(msg); id != h.backlogRun {
		h.backlog = h.backlog[:0]
		h.backlogRun = id
	}
	if len(h.backlog) == replayDepth {
		h.backlog = append(h.backlog[:0], h.backlog[1:]...)
	}
	h.backlog = append(h.backlog, msg)
}

func runIDOf(msg []byte) string {
	var m struct {
		Data struct {
			RunID string `json:"runId"`
		} `json:"data"`
	}
	_ = json.Unmarshal(msg, &m)
	return m.Data.RunID
}

func (h *hub) stop() { close(h.done) }

// publish never blocks: the login run must not stall on slow listeners.
func (h *hub) publish(t string, v any) {
	select {
	case h.broadcast <- marshalWS(t, v):
	default:
		h.logger.Warn("ws broadcast queue full; dropping event", slog.String("type", t))
	}
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  4096,
	CheckOrigin:      func(r *http.Request) bool { return true }, // local tooling
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade", slog.String("err", err.Error()))
		return
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(25 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func marshalWS(t string, v any) []byte {
	b, _ := json.Marshal(wsMessage{Type: t, Data: v})
	return b
}
