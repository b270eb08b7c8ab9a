package models

import (
	"time"

	dErrors "rentguard/pkg/domain-errors"
)

// DateRange is a half-open stay [CheckIn, CheckOut): a stay ending on a day
// does not overlap one starting that day.
type DateRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// NewDateRange validates a requested stay at now.
func NewDateRange(checkIn, checkOut, now time.Time) (DateRange, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return DateRange{}, dErrors.New(dErrors.CodeInvalidDateRange, "check-in and check-out are required")
	}
	if !checkIn.Before(checkOut) {
		return DateRange{}, dErrors.New(dErrors.CodeInvalidDateRange, "check-in must be before check-out")
	}
	if checkIn.Before(now) {
		return DateRange{}, dErrors.New(dErrors.CodeInvalidDateRange, "check-in is in the past")
	}
	return DateRange{CheckIn: checkIn.UTC(), CheckOut: checkOut.UTC()}, nil
}

func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}
