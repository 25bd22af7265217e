package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const ClusterChannel = "docchat_cluster_events"

// Hub fans store events out to every connected websocket client. With Redis
// configured, events are also relayed to the hubs of other instances.
type Hub struct {
	clients map[*Client]struct{}

	register chan *Client

	mu sync.RWMutex

	// instanceId tags relayed messages so a hub ignores its own
	instanceId string
	rdb        *redis.Client

	logger logger.ILogger
}

type clusterMessage struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		instanceId: uuid.NewString(),
		rdb:        rdb,
		logger:     log,
	}
}

// Run serves registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"client_id": client.Id, "clients": total})

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Publish implements events.Publisher: the event goes to local clients and
// to the Redis channel.
func (h *Hub) Publish(ctx context.Context, event events.Event) error {
	data, err := events.Marshal(event)
	if err != nil {
		return err
	}

	h.deliver(data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.instanceId, Message: data})
		if err := h.rdb.Publish(ctx, ClusterChannel, payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ClientCount reports the number of connected local clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver sends data to every local client. Clients whose buffer is full are
// dropped.
func (h *Hub) deliver(data []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{"client_id": client.Id})
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.Send)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"client_id": client.Id})
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceId {
				continue
			}
			h.deliver(payload.Message)
		}
	}
}
