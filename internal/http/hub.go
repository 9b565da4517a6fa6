package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
)

// Event types pushed to websocket clients.
const (
	EventStatus    = "status"
	EventOutcome   = "outcome"
	EventCompleted = "completed"
)

const writeWait = 5 * time.Second

// Event is a message pushed to websocket clients.
type Event struct {
	Type      string             `json:"type"`
	SessionID string             `json:"sessionId,omitempty"`
	Status    *recorder.Snapshot `json:"status,omitempty"`
	Outcome   *segment.Outcome   `json:"outcome,omitempty"`
	Completed []int              `json:"completed,omitempty"`
	Failed    []int              `json:"failed,omitempty"`
}

// Hub manages websocket connections. Only Run writes to connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHub creates a hub. Call Run before serving clients.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the control UI is served from localhost
			},
		},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("http.hub"),
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then closes
// every client. Connections arriving after Run returns are closed at once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			h.metrics.EventClients.Set(0)
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.EventClients.Set(float64(n))
			h.logger.Debug().Int("clients", n).Msg("Client connected")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.EventClients.Set(float64(n))
			h.logger.Debug().Int("clients", n).Msg("Client disconnected")
		case event := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					h.logger.Debug().Err(err).Msg("Write error, dropping client")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.EventClients.Set(float64(n))
		}
	}
}

// Broadcast queues an event. Events are dropped when the queue is full so a
// slow client never blocks the recorder callbacks.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn().Str("type", ev.Type).Msg("Event queue full, dropping event")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Keep connection alive, handle disconnects
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// OnOutcome pushes a resolved segment.
func (h *Hub) OnOutcome(sessionID string, o segment.Outcome) {
	h.Broadcast(Event{Type: EventOutcome, SessionID: sessionID, Outcome: &o})
}

// OnComplete pushes the session completion.
func (h *Hub) OnComplete(sessionID string, completed, failed []segment.Outcome) {
	h.Broadcast(Event{
		Type:      EventCompleted,
		SessionID: sessionID,
		Completed: indices(completed),
		Failed:    indices(failed),
	})
}

// PumpStatus pushes a status event every interval while clients are
// connected, until ctx is done.
func (h *Hub) PumpStatus(ctx context.Context, status func() recorder.Snapshot, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if h.Clients() == 0 {
				continue
			}
			s := status()
			h.Broadcast(Event{Type: EventStatus, SessionID: s.SessionID, Status: &s})
		}
	}
}

func indices(outcomes []segment.Outcome) []int {
	out := make([]int, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Index)
	}
	return out
}
