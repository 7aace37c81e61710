package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oto-insights-go/internal/logger"
	"oto-insights-go/internal/types"
)

const writeWait = 10 * time.Second

var errHubBacklog = errors.New("status hub backlog full")

type subscription struct {
	conversationID string
	conn           *websocket.Conn
}

// Hub fans status events out to websocket clients watching a conversation.
// It is registered as a status sink.
type Hub struct {
	clients    map[string]map[*websocket.Conn]bool
	broadcast  chan types.StatusEvent
	register   chan subscription
	unregister chan subscription
	done       chan struct{}
	mu         sync.RWMutex
	log        *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		broadcast:  make(chan types.StatusEvent, 100),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		done:       make(chan struct{}),
		log:        log.Component("hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conns := range h.clients {
				for conn := range conns {
					conn.Close()
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			conns := h.clients[sub.conversationID]
			if conns == nil {
				conns = make(map[*websocket.Conn]bool)
				h.clients[sub.conversationID] = conns
			}
			conns[sub.conn] = true
			n := len(conns)
			h.mu.Unlock()
			h.log.WithConversation(sub.conversationID).WithField("watchers", n).Debug("client connected")

		case sub := <-h.unregister:
			h.mu.Lock()
			h.drop(sub.conversationID, sub.conn)
			h.mu.Unlock()
			h.log.WithConversation(sub.conversationID).Debug("client disconnected")

		case ev := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients[ev.ConversationID] {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(ev); err != nil {
					h.log.WithConversation(ev.ConversationID).WithError(err).Warn("websocket write failed")
					h.drop(ev.ConversationID, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(id string, conn *websocket.Conn) {
	conns, ok := h.clients[id]
	if !ok {
		return
	}
	if _, ok := conns[conn]; ok {
		delete(conns, conn)
		conn.Close()
	}
	if len(conns) == 0 {
		delete(h.clients, id)
	}
}

// Publish queues ev for delivery. It never blocks on slow clients.
func (h *Hub) Publish(ctx context.Context, ev types.StatusEvent) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errHubBacklog
	}
}

// Watchers returns how many clients follow a conversation.
func (h *Hub) Watchers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[conversationID])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serve upgrades the request, sends the current snapshot and then hands the
// connection to the hub. The read loop only detects disconnects.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, snapshot types.StatusEvent) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		conn.Close()
		return err
	}

	sub := subscription{conversationID: snapshot.ConversationID, conn: conn}
	select {
	case h.register <- sub:
	case <-h.done:
		conn.Close()
		return errors.New("status hub stopped")
	case <-r.Context().Done():
		conn.Close()
		return r.Context().Err()
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- sub:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}
