package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"campusline/metrics"
)

// Hub keeps one room per user id. Membership is connection scoped: a closed
// connection leaves its room without any explicit unsubscribe.
type Hub struct {
	clients    map[string]*Client
	userConns  map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		userConns:  make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run processes registrations until ctx is cancelled, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.userConns[client.UserID] == nil {
				h.userConns[client.UserID] = make(map[*Client]bool)
			}
			h.userConns[client.UserID][client] = true
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.Debug("client joined room", zap.String("user_id", client.UserID), zap.String("conn_id", client.ID))

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			h.mu.Lock()
			for _, client := range h.clients {
				close(client.Send)
				h.metrics.ConnectionClosed()
			}
			h.clients = make(map[string]*Client)
			h.userConns = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	if h.userConns[client.UserID] != nil {
		delete(h.userConns[client.UserID], client)
		if len(h.userConns[client.UserID]) == 0 {
			delete(h.userConns, client.UserID)
		}
	}
	close(client.Send)
	h.metrics.ConnectionClosed()
	h.logger.Debug("client left room", zap.String("user_id", client.UserID), zap.String("conn_id", client.ID))
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToUser queues payload on every connection of userID and returns how
// many connections accepted it. Connections with a full buffer are dropped.
func (h *Hub) SendToUser(userID string, payload []byte) int {
	h.mu.RLock()
	var slow []*Client
	delivered := 0
	for client := range h.userConns[userID] {
		select {
		case client.Send <- payload:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("dropping slow client", zap.String("user_id", userID), zap.String("conn_id", client.ID))
		go h.Unregister(client)
	}
	return delivered
}

// Emit delivers an event to the local connections of userID.
func (h *Hub) Emit(_ context.Context, userID, event string, data interface{}) error {
	payload, err := json.Marshal(&Message{Event: event, Data: data})
	if err != nil {
		return err
	}
	h.SendToUser(userID, payload)
	return nil
}

func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
