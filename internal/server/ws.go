package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 45 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

// Frame is the wire shape of every WebSocket message: server broadcasts
// and any future client request alike.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcast event type names (server -> client).
const (
	EventStatus               = "status"
	EventSystemMetrics        = "system_metrics"
	EventComboTestProgress    = "combo_test_progress"
	EventComboTestResult      = "combo_test_result"
	EventComboTestMainExcluded = "combo_test_main_excluded"
	EventComboTestError       = "combo_test_error"
	EventComboTestCompleted   = "combo_test_completed"
	EventSessionCreated       = "session_created"
	EventSessionUpdated       = "session_updated"
)

// Hub fans broadcast frames out to every connected subscriber. Delivery
// is best-effort and ordered only per-subscriber: a slow reader gets
// dropped from a full send buffer rather than blocking the broadcaster,
// matching the best-effort broadcast / per-subscriber-ordered model.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*wsClient
}

func newHub() *Hub {
	return &Hub{clients: map[string]*wsClient{}}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// Broadcast enqueues a frame for every connected client.
func (h *Hub) Broadcast(eventType string, data any) {
	frame := Frame{Type: eventType, Data: data}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- encoded:
		default:
			// buffer full: drop this subscriber rather than block the hub.
			go c.close()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// run is a no-op pump kept for symmetry with the hub's lifecycle; the
// hub itself is driven entirely by register/unregister/Broadcast calls
// from handler goroutines, so there is nothing to loop over here beyond
// waiting for shutdown.
func (h *Hub) run(ctx context.Context) {
	<-ctx.Done()
}

type wsClient struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (c *Core) newWSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		client := &wsClient{
			id:     uuid.NewString(),
			hub:    c.hub,
			conn:   conn,
			send:   make(chan []byte, wsSendBuffer),
			ctx:    ctx,
			cancel: cancel,
		}
		c.hub.register(client)
		client.enqueue(Frame{Type: EventStatus, Data: map[string]any{"connected": true}})
		go client.writeLoop()
		client.readLoop()
	})
}

func (c *wsClient) enqueue(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		c.cancel()
		_ = c.conn.Close()
	})
}
