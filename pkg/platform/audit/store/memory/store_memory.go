package memory

import (
	"context"
	"sync"

	id "rentguard/pkg/domain"
	audit "rentguard/pkg/platform/audit"
)

// InMemoryStore keeps every event per booking for the life of the process.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.BookingID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.BookingID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.BookingID] = append(s.events[event.BookingID], event)
	return nil
}

func (s *InMemoryStore) ListByBooking(_ context.Context, bookingID id.BookingID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[bookingID]...), nil
}
