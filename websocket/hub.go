package websocket

import (
	"context"
	"sync"

	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Staff  bool
	Conn   Conn
}

// Hub fans coupon events out to the owning student's connections and to every
// connected staff member.
type Hub struct {
	log        *zap.Logger
	register   chan *Client
	unregister chan *Client
	broadcast  chan services.CouponEvent
	done       chan struct{}

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan services.CouponEvent, 256),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Register adds c to the hub. After Run has returned it closes c instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Conn.Close()
	}
}

// Unregister is a no-op once Run has returned.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues the event. It drops the event rather than block a committed
// request when the queue is full.
func (h *Hub) Publish(event services.CouponEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("realtime queue full, dropping event", zap.String("type", event.Type))
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]struct{})
			}
			h.clients[client.UserID][client] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("user_id", client.UserID.String()))
		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug("client unregistered", zap.String("user_id", client.UserID.String()))
		case event := <-h.broadcast:
			for _, client := range h.recipients(event) {
				if err := client.Conn.WriteJSON(event); err != nil {
					h.log.Warn("error sending event", zap.String("user_id", client.UserID.String()), zap.Error(err))
					client.Conn.Close()
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) recipients(event services.CouponEvent) []*Client {
	if event.Coupon == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for userID, set := range h.clients {
		for client := range set {
			if client.Staff || userID == event.Coupon.StudentID {
				out = append(out, client)
			}
		}
	}
	return out
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for client := range set {
			client.Conn.Close()
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
