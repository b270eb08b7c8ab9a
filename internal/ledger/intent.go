package ledger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	id "rentguard/pkg/domain"
)

// IntentType is the fund movement requested from the ledger.
type IntentType string

const (
	IntentLockDeposit IntentType = "lock_deposit"
	IntentSettle      IntentType = "settle"
)

// Split divides a locked deposit between tenant and host.
type Split struct {
	TenantRefund int64 `json:"tenant_refund"`
	HostPayout   int64 `json:"host_payout"`
}

func (s Split) Total() int64 { return s.TenantRefund + s.HostPayout }

// Intent is one idempotent ledger request. A booking has at most one intent
// of each type; Key identifies it across retries.
type Intent struct {
	BookingID id.BookingID `json:"booking_id"`
	Type      IntentType   `json:"type"`
	Amount    int64        `json:"amount,omitempty"`
	Split     Split        `json:"split"`
}

func LockIntent(bookingID id.BookingID, amount int64) Intent {
	return Intent{BookingID: bookingID, Type: IntentLockDeposit, Amount: amount}
}

func SettleIntent(bookingID id.BookingID, split Split) Intent {
	return Intent{BookingID: bookingID, Type: IntentSettle, Amount: split.Total(), Split: split}
}

// Key is the idempotency key: booking id plus intent type.
func (i Intent) Key() string {
	return fmt.Sprintf("booking:%d:%s", uint64(i.BookingID), i.Type)
}

// Fingerprint commits to the payload so a replay with different amounts
// under the same key is detected.
func (i Intent) Fingerprint() string {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint64(buf, uint64(i.BookingID))
	buf = append(buf, i.Type...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(i.Amount))
	buf = binary.BigEndian.AppendUint64(buf, uint64(i.Split.TenantRefund))
	buf = binary.BigEndian.AppendUint64(buf, uint64(i.Split.HostPayout))
	return crypto.Keccak256Hash(buf).Hex()
}

func (i Intent) validate() error {
	switch i.Type {
	case IntentLockDeposit:
		if i.Amount < 0 {
			return fmt.Errorf("lock amount must not be negative: %d: %w", i.Amount, ErrRejected)
		}
	case IntentSettle:
		if i.Split.TenantRefund < 0 || i.Split.HostPayout < 0 {
			return fmt.Errorf("split shares must not be negative: %+v: %w", i.Split, ErrRejected)
		}
	default:
		return fmt.Errorf("unknown intent type %q: %w", i.Type, ErrRejected)
	}
	if i.BookingID.IsZero() {
		return fmt.Errorf("intent without booking id: %w", ErrRejected)
	}
	return nil
}

// Receipt confirms a committed intent.
type Receipt struct {
	Key         string     `json:"key"`
	Intent      IntentType `json:"intent"`
	Fingerprint string     `json:"fingerprint"`
	Reference   string     `json:"reference"`
	Amount      int64      `json:"amount"`
	Split       Split      `json:"split"`
	CommittedAt time.Time  `json:"committed_at"`
	// Replayed is set when the receipt came from the journal rather than a
	// fresh backend call.
	Replayed bool `json:"-"`
}
