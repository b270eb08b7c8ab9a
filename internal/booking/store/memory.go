package store

import (
	"context"
	"slices"
	"sync"

	"rentguard/internal/booking/models"
	id "rentguard/pkg/domain"
)

// InMemory keeps bookings in maps. Used in tests and single-process dev mode.
type InMemory struct {
	mu         sync.RWMutex
	nextID     uint64
	bookings   map[id.BookingID]*models.Booking
	byTenant   map[id.TenantID][]id.BookingID
	byProperty map[id.PropertyID][]id.BookingID
	// open indexes the non-terminal bookings of each property for the overlap check.
	open map[id.PropertyID]map[id.BookingID]struct{}

	propertyLocks *keyedMutex
	bookingLocks  *keyedMutex
}

func NewInMemory() *InMemory {
	return &InMemory{
		bookings:      make(map[id.BookingID]*models.Booking),
		byTenant:      make(map[id.TenantID][]id.BookingID),
		byProperty:    make(map[id.PropertyID][]id.BookingID),
		open:          make(map[id.PropertyID]map[id.BookingID]struct{}),
		propertyLocks: newKeyedMutex(),
		bookingLocks:  newKeyedMutex(),
	}
}

func (s *InMemory) Create(_ context.Context, b *models.Booking) (*models.Booking, error) {
	unlock := s.propertyLocks.Lock(string(b.PropertyID))
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	open := make([]*models.Booking, 0, len(s.open[b.PropertyID]))
	for bid := range s.open[b.PropertyID] {
		open = append(open, s.bookings[bid])
	}
	if overlapsAny(open, b) {
		return nil, ErrOverlap
	}

	s.nextID++
	stored := b.Clone()
	stored.ID = id.BookingID(s.nextID)
	s.bookings[stored.ID] = stored
	s.byTenant[stored.TenantID] = append(s.byTenant[stored.TenantID], stored.ID)
	s.byProperty[stored.PropertyID] = append(s.byProperty[stored.PropertyID], stored.ID)
	s.index(stored)
	return stored.Clone(), nil
}

func (s *InMemory) Get(_ context.Context, bookingID id.BookingID) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, notFound(bookingID)
	}
	return b.Clone(), nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byTenant[tenantID]), nil
}

func (s *InMemory) ListByProperty(_ context.Context, propertyID id.PropertyID) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byProperty[propertyID]), nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []id.BookingID
	for bid, b := range s.bookings {
		if b.Status == status {
			ids = append(ids, bid)
		}
	}
	slices.Sort(ids)
	return s.collect(ids), nil
}

func (s *InMemory) Update(_ context.Context, bookingID id.BookingID, fn UpdateFunc) (*models.Booking, error) {
	unlock := s.bookingLocks.Lock(bookingID.String())
	defer unlock()

	s.mu.RLock()
	current, ok := s.bookings[bookingID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(bookingID)
	}

	next, err := applyUpdate(current, fn)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.bookings[bookingID] = next
	s.index(next)
	s.mu.Unlock()
	return next.Clone(), nil
}

// index keeps the open set in step with b's status. Caller holds s.mu.
func (s *InMemory) index(b *models.Booking) {
	if holdsDates(b) {
		if s.open[b.PropertyID] == nil {
			s.open[b.PropertyID] = make(map[id.BookingID]struct{})
		}
		s.open[b.PropertyID][b.ID] = struct{}{}
		return
	}
	delete(s.open[b.PropertyID], b.ID)
	if len(s.open[b.PropertyID]) == 0 {
		delete(s.open, b.PropertyID)
	}
}

func (s *InMemory) collect(ids []id.BookingID) []*models.Booking {
	out := make([]*models.Booking, 0, len(ids))
	for _, bid := range ids {
		out = append(out, s.bookings[bid].Clone())
	}
	return out
}
