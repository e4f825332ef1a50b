package notify

import (
	"context"
	"sync"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// Store persists notifications. Insert must be idempotent on the
// (document, threshold, recipient) key: the bool reports whether a new row
// was actually created, so overlapping or retried sweeps create nothing the
// second time.
type Store interface {
	Insert(ctx context.Context, n Notification) (bool, error)
	Get(ctx context.Context, notificationID id.NotificationID) (Notification, error)
	MarkSent(ctx context.Context, notificationID id.NotificationID, providerMessageID string) error
	MarkFailed(ctx context.Context, notificationID id.NotificationID, sendErr string) error
}

// DeliveryQueue enqueues one delivery job per created notification.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, notificationID id.NotificationID) error
}

type dedupKey struct {
	document  id.DocumentID
	threshold int
	recipient id.UserID
}

// MemoryStore mirrors the notifications_dedup_uniq index with a keyed map so
// engine tests exercise the same at-most-once semantics as postgres.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[id.NotificationID]Notification
	byKey map[dedupKey]id.NotificationID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[id.NotificationID]Notification),
		byKey: make(map[dedupKey]id.NotificationID),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, n Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dedupKey{document: n.DocumentID, threshold: n.ThresholdDays, recipient: n.RecipientID}
	if _, exists := s.byKey[key]; exists {
		return false, nil
	}
	s.byKey[key] = n.ID
	s.byID[n.ID] = n
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, notificationID id.NotificationID) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[notificationID]
	if !ok {
		return Notification{}, sentinel.ErrNotFound
	}
	return n, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, notificationID id.NotificationID, providerMessageID string) error {
	return s.setStatus(notificationID, StatusSent, "provider_message_id", providerMessageID)
}

func (s *MemoryStore) MarkFailed(ctx context.Context, notificationID id.NotificationID, sendErr string) error {
	return s.setStatus(notificationID, StatusFailed, "delivery_error", sendErr)
}

func (s *MemoryStore) setStatus(notificationID id.NotificationID, status Status, metaKey, metaValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[notificationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	n.Status = status
	if n.Metadata == nil {
		n.Metadata = make(map[string]string)
	}
	n.Metadata[metaKey] = metaValue
	s.byID[notificationID] = n
	return nil
}

// All returns every stored notification, for test assertions.
func (s *MemoryStore) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.byID))
	for _, n := range s.byID {
		out = append(out, n)
	}
	return out
}
