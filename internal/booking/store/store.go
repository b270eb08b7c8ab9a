package store

import (
	"context"
	"fmt"

	"rentguard/internal/booking/models"
	id "rentguard/pkg/domain"
	"rentguard/pkg/platform/sentinel"
)

// ErrOverlap is returned by Create when the property already has an open
// booking whose dates intersect the new one.
var ErrOverlap = fmt.Errorf("dates overlap an open booking: %w", sentinel.ErrConflict)

// UpdateFunc mutates a private copy of a booking. Returning an error
// discards the copy.
type UpdateFunc func(b *models.Booking) error

// Store is the booking registry. It owns every Booking record; callers only
// ever see copies.
//
// Create checks for overlap and inserts atomically per property. Update runs
// fn under a per-booking lock, so two updates of the same booking never
// interleave.
type Store interface {
	Create(ctx context.Context, b *models.Booking) (*models.Booking, error)
	Get(ctx context.Context, bookingID id.BookingID) (*models.Booking, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Booking, error)
	ListByProperty(ctx context.Context, propertyID id.PropertyID) ([]*models.Booking, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error)
	Update(ctx context.Context, bookingID id.BookingID, fn UpdateFunc) (*models.Booking, error)
}

// holdsDates reports whether b blocks other bookings on its property.
func holdsDates(b *models.Booking) bool { return !b.Status.IsTerminal() }

func overlapsAny(open []*models.Booking, b *models.Booking) bool {
	for _, o := range open {
		if holdsDates(o) && o.Dates.Overlaps(b.Dates) {
			return true
		}
	}
	return false
}

func notFound(bookingID id.BookingID) error {
	return fmt.Errorf("booking %s: %w", bookingID, sentinel.ErrNotFound)
}

// applyUpdate runs fn on a copy and refuses changes to the identity of the
// booking or an unknown status.
func applyUpdate(current *models.Booking, fn UpdateFunc) (*models.Booking, error) {
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.ID != current.ID || next.PropertyID != current.PropertyID || next.TenantID != current.TenantID || next.Dates != current.Dates {
		return nil, fmt.Errorf("booking %s: identity fields are immutable: %w", current.ID, sentinel.ErrInvalidState)
	}
	if !next.Status.IsValid() {
		return nil, fmt.Errorf("booking %s: unknown status %q: %w", current.ID, next.Status, sentinel.ErrInvalidState)
	}
	return next, nil
}
