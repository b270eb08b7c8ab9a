package proof

import (
	"time"

	"lukechampine.com/blake3"

	id "rentguard/pkg/domain"
)

// Subject is the committed booking data a proof attests to. ChainHead ties
// the proof to the booking's exact position in its lifecycle, so a proof
// issued for one state cannot be replayed against another.
type Subject struct {
	BookingID  id.BookingID
	TenantID   id.TenantID
	PropertyID id.PropertyID
	CheckIn    time.Time
	CheckOut   time.Time
	Deposit    int64
	ChainHead  Hash
}

// Hash returns the blake3 commitment of the subject for kind.
func (s Subject) Hash(kind Kind) Hash {
	var e encoder
	e.str(subjectDomain)
	e.str(string(kind))
	e.u64(uint64(s.BookingID))
	e.str(string(s.TenantID))
	e.str(string(s.PropertyID))
	e.time(s.CheckIn.UTC())
	e.time(s.CheckOut.UTC())
	e.i64(s.Deposit)
	e.bytes(s.ChainHead[:])
	return Hash(blake3.Sum256(e.buf.Bytes()))
}

const subjectDomain = "rentguard/subject/v1"
