package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/model"
)

// EventProcessor handles one inbound event; the error is reported back only
// to the client that sent it.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, ev *model.ChatEvent) error
}

// Hub is the shared broadcast topic. Every connected client sees every
// outbound event; there is no per-conversation routing, clients filter on
// conversationId themselves.
type Hub struct {
	processor EventProcessor

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
	}
}

// SetProcessor binds the inbound event handler. The hub and the orchestrator
// reference each other, so the processor is attached after construction and
// before Serve accepts connections.
func (h *Hub) SetProcessor(processor EventProcessor) {
	h.processor = processor
}

// Broadcast fans ev out to every connected client. A client whose send
// buffer is full is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(ev *model.ChatEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logutil.GetLogger(context.Background()).Error("marshal event failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	var stalled []*Client
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()
	for _, client := range stalled {
		logutil.GetLogger(context.Background()).Warn("dropping slow client",
			zap.String("remote", client.remote))
		client.close()
		h.detach(client)
	}
}

// ClientCount reports the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}
