package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rentguard/internal/booking/models"
	id "rentguard/pkg/domain"
	"rentguard/pkg/platform/sentinel"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func june(d int) time.Time { return time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC) }

// RegistrySuite runs the same behaviour checks against every Store.
type RegistrySuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func TestInMemoryRegistry(t *testing.T) {
	suite.Run(t, &RegistrySuite{newStore: func() Store { return NewInMemory() }})
}

func TestLevelDBRegistry(t *testing.T) {
	suite.Run(t, &RegistrySuite{newStore: func() Store {
		s, err := OpenLevelDBMemory()
		if err != nil {
			t.Fatalf("open leveldb: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	}})
}

func (s *RegistrySuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func (s *RegistrySuite) newBooking(tenant, property string, in, out int) *models.Booking {
	b, err := models.NewBooking(id.TenantID(tenant), id.PropertyID(property), "host-1",
		models.DateRange{CheckIn: june(in), CheckOut: june(out)}, 1000, testNow)
	s.Require().NoError(err)
	return b
}

func (s *RegistrySuite) create(tenant, property string, in, out int) *models.Booking {
	b, err := s.store.Create(s.ctx, s.newBooking(tenant, property, in, out))
	s.Require().NoError(err)
	return b
}

func (s *RegistrySuite) setStatus(bookingID id.BookingID, status models.Status) {
	_, err := s.store.Update(s.ctx, bookingID, func(b *models.Booking) error {
		b.Status = status
		return nil
	})
	s.Require().NoError(err)
}

func (s *RegistrySuite) TestCreateAssignsMonotonicIDs() {
	first := s.create("t1", "p1", 1, 5)
	second := s.create("t1", "p2", 1, 5)
	third := s.create("t2", "p3", 1, 5)
	s.Equal(id.BookingID(1), first.ID)
	s.Less(first.ID, second.ID)
	s.Less(second.ID, third.ID)
}

func (s *RegistrySuite) TestOverlap() {
	s.create("t1", "p1", 1, 5)

	s.Run("overlapping range is rejected", func() {
		_, err := s.store.Create(s.ctx, s.newBooking("t2", "p1", 3, 7))
		s.Require().ErrorIs(err, ErrOverlap)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("back to back stays are allowed", func() {
		_, err := s.store.Create(s.ctx, s.newBooking("t2", "p1", 5, 8))
		s.Require().NoError(err)
	})

	s.Run("other properties are independent", func() {
		_, err := s.store.Create(s.ctx, s.newBooking("t2", "p9", 1, 5))
		s.Require().NoError(err)
	})
}

func (s *RegistrySuite) TestTerminalBookingsReleaseDates() {
	cancelled := s.create("t1", "p1", 1, 5)
	s.setStatus(cancelled.ID, models.StatusCancelled)
	_, err := s.store.Create(s.ctx, s.newBooking("t2", "p1", 1, 5))
	s.Require().NoError(err)
}

func (s *RegistrySuite) TestDisputedBookingsHoldDates() {
	disputed := s.create("t1", "p1", 1, 5)
	s.setStatus(disputed.ID, models.StatusDisputed)
	_, err := s.store.Create(s.ctx, s.newBooking("t2", "p1", 2, 3))
	s.ErrorIs(err, ErrOverlap)
}

func (s *RegistrySuite) TestGetAndLists() {
	a := s.create("t1", "p1", 1, 3)
	b := s.create("t1", "p2", 1, 3)
	c := s.create("t2", "p1", 4, 6)

	got, err := s.store.Get(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.TenantID, got.TenantID)
	s.True(a.Dates.CheckIn.Equal(got.Dates.CheckIn))

	_, err = s.store.Get(s.ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)

	byTenant, err := s.store.ListByTenant(s.ctx, "t1")
	s.Require().NoError(err)
	s.Equal([]id.BookingID{a.ID, b.ID}, ids(byTenant))

	byProperty, err := s.store.ListByProperty(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal([]id.BookingID{a.ID, c.ID}, ids(byProperty))

	s.setStatus(b.ID, models.StatusActive)
	active, err := s.store.ListByStatus(s.ctx, models.StatusActive)
	s.Require().NoError(err)
	s.Equal([]id.BookingID{b.ID}, ids(active))
	requested, err := s.store.ListByStatus(s.ctx, models.StatusRequested)
	s.Require().NoError(err)
	s.Equal([]id.BookingID{a.ID, c.ID}, ids(requested))

	empty, err := s.store.ListByTenant(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *RegistrySuite) TestUpdate() {
	b := s.create("t1", "p1", 1, 5)

	s.Run("error discards the change", func() {
		boom := errors.New("boom")
		_, err := s.store.Update(s.ctx, b.ID, func(x *models.Booking) error {
			x.Status = models.StatusCancelled
			return boom
		})
		s.ErrorIs(err, boom)
		got, err := s.store.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRequested, got.Status)
	})

	s.Run("identity fields are immutable", func() {
		_, err := s.store.Update(s.ctx, b.ID, func(x *models.Booking) error {
			x.PropertyID = "elsewhere"
			return nil
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown status is refused", func() {
		_, err := s.store.Update(s.ctx, b.ID, func(x *models.Booking) error {
			x.Status = "archived"
			return nil
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown booking", func() {
		_, err := s.store.Update(s.ctx, 424242, func(*models.Booking) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned copies are detached", func() {
		got, err := s.store.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		got.History = append(got.History, models.StatusChange{To: models.StatusActive})
		again, err := s.store.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Len(again.History, 1)
	})
}

// TestConcurrentOverlappingCreates verifies exactly one of many racing
// requests for the same dates is accepted.
func (s *RegistrySuite) TestConcurrentOverlappingCreates() {
	const goroutines = 32
	var wg sync.WaitGroup
	var created, overlapped atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := models.NewBooking(id.TenantID("t"+string(rune('a'+i%26))), "hot", "host-1",
				models.DateRange{CheckIn: june(1 + i%3), CheckOut: june(6)}, 0, testNow)
			if err != nil {
				return
			}
			_, err = s.store.Create(s.ctx, b)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrOverlap):
				overlapped.Add(1)
			}
		}(i)
	}
	wg.Wait()
	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), overlapped.Load())
}

// TestConcurrentUpdatesSerialize verifies no update is lost when many
// writers touch the same booking.
func (s *RegistrySuite) TestConcurrentUpdatesSerialize() {
	b := s.create("t1", "p1", 1, 5)
	const writers = 40
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.store.Update(s.ctx, b.ID, func(x *models.Booking) error {
				x.History = append(x.History, models.StatusChange{To: x.Status})
				x.Version++
				return nil
			})
		}()
	}
	wg.Wait()
	got, err := s.store.Get(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Len(got.History, writers+1)
	s.Equal(uint64(writers+1), got.Version)
}

func ids(bs []*models.Booking) []id.BookingID {
	out := make([]id.BookingID, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.ID)
	}
	return out
}

func TestLevelDBReopenKeepsCounter(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := models.NewBooking("t1", "p1", "h1", models.DateRange{CheckIn: june(1), CheckOut: june(2)}, 0, testNow)
	first, err := s.Create(context.Background(), b)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	b2, _ := models.NewBooking("t1", "p2", "h1", models.DateRange{CheckIn: june(1), CheckOut: june(2)}, 0, testNow)
	second, err := s.Create(context.Background(), b2)
	if err != nil {
		t.Fatalf("create after reopen: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("id went backwards: %s after %s", second.ID, first.ID)
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	if len(k.locks) != 0 {
		t.Fatalf("expected no tracked keys, got %d", len(k.locks))
	}
}
