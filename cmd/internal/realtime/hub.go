package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"waypoint/cmd/internal/places"
)

// Hub fans feed envelopes out to every attached client.
//
// Attach/Detach are safe under concurrent Broadcast, and Broadcast never
// blocks: a full client queue drops the envelope for that client.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	clients map[string]*Client
	dropped uint64
}

var _ places.Publisher = (*Hub)(nil)

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		clients: make(map[string]*Client),
	}
}

// Attach registers client for broadcasts.
func (h *Hub) Attach(client *Client) {
	if client == nil || client.ID == "" {
		return
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("realtime.ws.attach", "connection_id", client.ID, "user_id", client.UserID, "subscribers", n)
}

// Detach removes the client and then signals it to shut down, so no
// broadcaster holds it while its goroutines exit.
func (h *Hub) Detach(id string) {
	if id == "" {
		return
	}
	h.mu.Lock()
	cl := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if cl != nil {
		cl.Close()
		h.log.Info("realtime.ws.detach", "connection_id", id)
	}
}

// CloseAll detaches every client. Used on server shutdown, which does not
// wait for hijacked connections.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	if len(all) > 0 {
		h.log.Info("realtime.hub.close_all", "subscribers", len(all))
	}
}

// Len reports the number of attached clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped reports how many envelopes were discarded under backpressure.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Broadcast delivers env to every live client without blocking.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	var dropped uint64
	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}
		select {
		case c.Send <- env:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.mu.Lock()
		h.dropped += dropped
		h.mu.Unlock()
		h.log.Warn("realtime.broadcast.drop", "type", env.Type, "dropped", dropped)
	}
}

// PublishPlaceCreated broadcasts a place.created envelope.
func (h *Hub) PublishPlaceCreated(_ context.Context, p places.Place) {
	env, err := newEnvelope(TypePlaceCreated, PlacePayload{
		ID:        p.ID,
		Name:      p.Name,
		Info:      p.Info,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}, h.now())
	if err != nil {
		h.log.Error("realtime.envelope.fail", "err", err, "type", TypePlaceCreated)
		return
	}
	h.Broadcast(env)
}
