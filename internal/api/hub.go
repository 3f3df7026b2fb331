package api

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelPrefix  = "trackcam:run:"
	channelSuffix  = ":progress"
	channelPattern = channelPrefix + "*" + channelSuffix
	clientBuffer   = 64
)

// Hub fans progress messages out to the websocket clients watching a run.
// With a Redis client, messages go through Redis pub/sub so that clients
// connected to any instance receive them; otherwise delivery is local.
type Hub struct {
	redis   *redis.Client
	logger  zerolog.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	pubsub  *redis.PubSub
	done    chan struct{}
}

// Client is one subscriber. Send is closed on Unregister.
type Client struct {
	RunID string
	Send  chan []byte
}

// NewHub creates a hub. A nil redisClient keeps delivery in-process.
func NewHub(redisClient *redis.Client, logger zerolog.Logger) *Hub {
	h := &Hub{
		redis:   redisClient,
		logger:  logger.With().Str("component", "progress-hub").Logger(),
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}
	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx := context.Background()
	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	// Wait for the subscription so nothing published after NewHub is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Redis subscribe failed, progress stays local")
		_ = pubsub.Close()
		h.redis = nil
		close(h.done)
		return h
	}
	h.pubsub = pubsub
	go h.subscribeRedis(pubsub.Channel())
	return h
}

// Close stops the Redis subscription.
func (h *Hub) Close() {
	if h.pubsub != nil {
		_ = h.pubsub.Close()
	}
	<-h.done
}

func (h *Hub) Register(runID string) *Client {
	client := &Client{
		RunID: runID,
		Send:  make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[runID] == nil {
		h.clients[runID] = map[*Client]struct{}{}
	}
	h.clients[runID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if runClients, ok := h.clients[client.RunID]; ok {
		if _, ok := runClients[client]; !ok {
			return
		}
		delete(runClients, client)
		if len(runClients) == 0 {
			delete(h.clients, client.RunID)
		}
		close(client.Send)
	}
}

// Broadcast sends payload to every client of runID. Slow clients miss
// messages rather than block the run.
func (h *Hub) Broadcast(runID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(runID), payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Str("run_id", runID).Msg("Redis publish failed, delivering locally")
	}
	h.deliver(runID, payload)
}

func (h *Hub) deliver(runID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[runID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(messages <-chan *redis.Message) {
	defer close(h.done)
	for msg := range messages {
		runID := runIDFromChannel(msg.Channel)
		if runID == "" {
			continue
		}
		h.deliver(runID, []byte(msg.Payload))
	}
}

func redisChannel(runID string) string {
	return channelPrefix + runID + channelSuffix
}

func runIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(ch, channelPrefix), channelSuffix)
}
