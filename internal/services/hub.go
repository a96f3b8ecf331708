package services

import (
	"context"
	"sync"

	"neuronudge-backend-go/internal/models"
)

// StatsSubscriber receives stats snapshots; *websocket.Conn satisfies it.
type StatsSubscriber interface {
	WriteJSON(v interface{}) error
}

type StatsUpdate struct {
	UserID string
	Stats  models.UserStats
}

// StatsHub fans committed stats out to the owning user's live connections.
// Only Run writes to subscribers.
type StatsHub struct {
	mu      sync.Mutex
	clients map[string]map[StatsSubscriber]bool
	ch      chan StatsUpdate
}

func NewStatsHub() *StatsHub {
	return &StatsHub{
		clients: map[string]map[StatsSubscriber]bool{},
		ch:      make(chan StatsUpdate, 64),
	}
}

func (h *StatsHub) Run(ctx context.Context) {
	for {
		select {
		case update := <-h.ch:
			h.deliver(update)
		case <-ctx.Done():
			return
		}
	}
}

// Publish never blocks; updates are dropped while the queue is full.
func (h *StatsHub) Publish(userID string, stats models.UserStats) {
	if h == nil {
		return
	}
	select {
	case h.ch <- StatsUpdate{UserID: userID, Stats: stats}:
	default:
	}
}

func (h *StatsHub) Add(userID string, sub StatsSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[StatsSubscriber]bool{}
	}
	h.clients[userID][sub] = true
}

func (h *StatsHub) Remove(userID string, sub StatsSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[userID], sub)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *StatsHub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

func (h *StatsHub) deliver(update StatsUpdate) {
	h.mu.Lock()
	subs := make([]StatsSubscriber, 0, len(h.clients[update.UserID]))
	for sub := range h.clients[update.UserID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		if err := sub.WriteJSON(update.Stats); err != nil {
			h.Remove(update.UserID, sub)
		}
	}
}
