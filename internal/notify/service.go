package notify

import (
	"context"
	"fmt"
	"log"
	"sync"

	"recruiting-ats/internal/storage"
)

// Notification types raised by the backend.
const (
	TypeMatch      = "match"
	TypeTaskFailed = "task_failed"
	TypeSyncFailed = "sync_failed"
	TypePostFailed = "post_failed"
	TypePublished  = "posting_published"
)

// Hub fans notifications out to in-process subscribers, keyed by user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan storage.Notification]struct{}
	buf  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[chan storage.Notification]struct{}), buf: buffer}
}

// Subscribe registers a listener for userID. cancel must be called to release it.
func (h *Hub) Subscribe(userID string) (<-chan storage.Notification, func()) {
	ch := make(chan storage.Notification, h.buf)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan storage.Notification]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers n to every subscriber of n.UserID. Slow subscribers miss messages.
func (h *Hub) Publish(n storage.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			delivered++
		default:
			log.Printf("[NotifyHub] subscriber of %s is full, dropping %s", n.UserID, n.ID)
		}
	}
	return delivered
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Service persists notifications and pushes them to live subscribers.
type Service struct {
	db  *storage.DB
	hub *Hub
}

func NewService(db *storage.DB, hub *Hub) *Service {
	return &Service{db: db, hub: hub}
}

func (s *Service) Hub() *Hub { return s.hub }

func (s *Service) Notify(ctx context.Context, n *storage.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("%w: notification without user", storage.ErrInvalid)
	}
	if err := s.db.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if s.hub != nil {
		s.hub.Publish(*n)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*storage.Notification, error) {
	return s.db.ListNotifications(ctx, userID, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	return s.db.MarkNotificationRead(ctx, id, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.db.MarkAllNotificationsRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.db.UnreadNotificationCount(ctx, userID)
}
