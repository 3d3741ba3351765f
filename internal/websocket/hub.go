package websocket

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	"github.com/xenn00/crew-chat/internal/realtime"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EventChange = "change"
	EventPong   = "pong"

	relayUser = "relay"
)

type HubConfig struct {
	// ResubscribeDelay is the wait before a room bridge reopens a failed feed subscription.
	ResubscribeDelay  time.Duration
	ConnectionsPerIP  int
	SendBuffer        int
	CleanupInterval   time.Duration
	InactiveThreshold time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		ResubscribeDelay:  3 * time.Second,
		ConnectionsPerIP:  20,
		SendBuffer:        256,
		CleanupInterval:   time.Minute,
		InactiveThreshold: 2 * time.Minute,
	}
}

// Hub fans room change events out to websocket clients. Each room with at least one
// client holds exactly one feed subscription.
type Hub struct {
	feed   realtime.Feed
	config HubConfig

	// Room management
	rooms   map[string]map[*Client]struct{}
	bridges map[string]*bridge
	mu      sync.RWMutex

	// per-IP connection counts
	ipConns map[string]int
	ipMu    sync.Mutex

	// Hub lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats   HubStats
	statsMu sync.RWMutex
}

type HubStats struct {
	TotalRooms       int       `json:"total_rooms"`
	TotalClients     int       `json:"total_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessageSent      int64     `json:"message_sent"`
	Resubscribes     int64     `json:"resubscribes"`
	LastReset        time.Time `json:"last_reset"`
}

type bridge struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(feed realtime.Feed, config HubConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		feed:    feed,
		config:  config,
		rooms:   make(map[string]map[*Client]struct{}),
		bridges: make(map[string]*bridge),
		ipConns: make(map[string]int),
		ctx:     ctx,
		cancel:  cancel,
		stats: HubStats{
			LastReset: time.Now(),
		},
	}

	hub.wg.Add(1)
	go hub.cleanupRoutine()

	return hub
}

// Register adds a client to a room and opens the room bridge for the first client.
func (h *Hub) Register(roomID string, client *Client) {
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	roomSize := len(h.rooms[roomID])

	if _, ok := h.bridges[roomID]; !ok && h.ctx.Err() == nil {
		h.openBridge(roomID)
	}
	h.mu.Unlock()

	h.updateStats(func(stats *HubStats) {
		stats.TotalConnections++
	})

	client.Start()

	log.Info().Str("roomID", roomID).Str("clientID", client.ID).Str("userID", client.UserID).Int("roomSize", roomSize).Msg("ws: client registered to room")
}

// Unregister removes a client from a room; the last client closes the bridge.
func (h *Hub) Unregister(roomID string, client *Client) {
	var closing *bridge

	h.mu.Lock()
	clients := h.rooms[roomID]
	if _, member := clients[client]; !member {
		h.mu.Unlock()
		return
	}
	delete(clients, client)

	if len(clients) == 0 {
		delete(h.rooms, roomID)
		closing = h.bridges[roomID]
		delete(h.bridges, roomID)
	}
	h.mu.Unlock()

	h.releaseIP(client.ClientIP)

	if closing != nil {
		closing.cancel()
	}

	log.Info().Str("roomID", roomID).Str("clientID", client.ID).Str("userID", client.UserID).Msg("ws: client unregistered from room")
}

// openBridge must be called with h.mu held.
func (h *Hub) openBridge(roomID string) {
	ctx, cancel := context.WithCancel(h.ctx)
	b := &bridge{cancel: cancel, done: make(chan struct{})}
	h.bridges[roomID] = b

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(b.done)
		h.runBridge(ctx, roomID)
	}()
}

func (h *Hub) runBridge(ctx context.Context, roomID string) {
	tag := realtime.SubscriptionTag(roomID, relayUser)
	for {
		sub, err := h.feed.Subscribe(ctx, roomID, tag)
		if err != nil {
			log.Error().Err(err).Str("roomID", roomID).Msg("ws: room bridge subscribe failed")
			return
		}

		h.pumpBridge(ctx, roomID, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("roomID", roomID).Dur("delay", h.config.ResubscribeDelay).Msg("ws: room bridge resubscribing")
		h.updateStats(func(stats *HubStats) {
			stats.Resubscribes++
		})

		timer := time.NewTimer(h.config.ResubscribeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// pumpBridge returns when the subscription fails or ends, or ctx is done.
func (h *Hub) pumpBridge(ctx context.Context, roomID string, sub realtime.Subscription) {
	events, statuses := sub.Events(), sub.Status()
	for events != nil || statuses != nil {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			change := ev
			h.BroadcastToRoom(roomID, chat_dto.WSOutgoingMessage{Event: EventChange, Change: &change})

		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			h.BroadcastToRoom(roomID, chat_dto.WSOutgoingMessage{Event: string(st)})
			if st != realtime.StatusSubscribed {
				return
			}
		}
	}
}

// BroadcastToRoom sends a message to all clients in a room
func (h *Hub) BroadcastToRoom(roomID string, message chat_dto.WSOutgoingMessage) {
	message.RoomID = roomID

	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Str("roomID", roomID).Msg("ws: failed to marshal broadcast message")
		return
	}

	// Get snapshot of clients (minimize lock time)
	h.mu.RLock()
	var targets []*Client
	if clients, ok := h.rooms[roomID]; ok {
		targets = make([]*Client, 0, len(clients))
		for client := range clients {
			if client.IsClientActive() {
				targets = append(targets, client)
			}
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	sent := 0
	for _, c := range targets {
		select {
		case c.Send <- data:
			sent++
		case <-c.ctx.Done():
		default:
			// Client buffer full - slow consumer
			log.Warn().Str("roomID", roomID).Str("clientID", c.ID).Msg("ws: slow consumer, closing client")
			c.Close()
		}
	}

	h.updateStats(func(stats *HubStats) {
		stats.MessageSent += int64(sent)
	})

	log.Debug().Str("roomID", roomID).Int("targets", sent).Str("event", message.Event).Msg("ws: broadcast completed")
}

// GetRoomClients return all active clients in a room
func (h *Hub) GetRoomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var clients []*Client
	for client := range h.rooms[roomID] {
		if client.IsClientActive() {
			clients = append(clients, client)
		}
	}

	return clients
}

// GetRoomStats returns statistics for a room
func (h *Hub) GetRoomStats(roomID string) map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := map[string]any{
		"room_id": roomID,
		"exists":  false,
	}

	if clients, ok := h.rooms[roomID]; ok {
		activeClients := 0
		uniqueUsers := make(map[string]bool)

		for client := range clients {
			if client.IsClientActive() {
				activeClients++
				uniqueUsers[client.UserID] = true
			}
		}

		_, bridged := h.bridges[roomID]
		stats["exists"] = true
		stats["bridged"] = bridged
		stats["total_connections"] = len(clients)
		stats["active_connections"] = activeClients
		stats["unique_users"] = len(uniqueUsers)
	}

	return stats
}

// GetHubStats returns overall hub statistics
func (h *Hub) GetHubStats() HubStats {
	h.mu.RLock()
	rooms := len(h.rooms)
	totalClients := 0
	for _, clients := range h.rooms {
		for client := range clients {
			if client.IsClientActive() {
				totalClients++
			}
		}
	}
	h.mu.RUnlock()

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats.TotalRooms = rooms
	h.stats.TotalClients = totalClients

	return h.stats
}

func (h *Hub) updateStats(fn func(*HubStats)) {
	h.statsMu.Lock()
	fn(&h.stats)
	h.statsMu.Unlock()
}

func (h *Hub) cleanupRoutine() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.performCleanup()
		}
	}
}

func (h *Hub) performCleanup() {
	now := time.Now()

	var toRemove []*Client

	h.mu.RLock()
	for _, clients := range h.rooms {
		for client := range clients {
			if !client.IsClientActive() || now.Sub(client.GetLastSeen()) > h.config.InactiveThreshold {
				toRemove = append(toRemove, client)
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range toRemove {
		log.Info().
			Str("clientID", client.ID).
			Str("roomID", client.RoomID).
			Msg("ws: cleaning up inactive client")
		client.Close()
	}

	log.Debug().Int("cleaned", len(toRemove)).Msg("ws: cleanup routine completed")
}

// Close gracefully shuts down the hub and waits for every bridge to end.
func (h *Hub) Close() {
	log.Info().Msg("ws: shutting down hub")

	h.cancel()

	h.mu.RLock()
	var allClients []*Client
	for _, clients := range h.rooms {
		for client := range clients {
			allClients = append(allClients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range allClients {
		client.Close()
	}

	h.wg.Wait()

	log.Info().Int("clients", len(allClients)).Msg("ws: hub shutdown completed")
}
