package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "rentguard/pkg/domain"
	"rentguard/pkg/platform/sentinel"
)

// Effects is the net state a backend has applied for one booking.
type Effects struct {
	Locked      int64
	Settled     bool
	Split       Split
	LockCalls   int
	SettleCalls int
}

// MemoryBackend simulates the escrow node in process. It dedupes by key
// like the real node and rejects settlement of an unlocked booking.
type MemoryBackend struct {
	mu       sync.Mutex
	effects  map[id.BookingID]*Effects
	receipts map[string]Receipt
	seq      int
	failures int
	lost     int
	now      func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		effects:  make(map[id.BookingID]*Effects),
		receipts: make(map[string]Receipt),
		now:      time.Now,
	}
}

// FailNext makes the next n calls return sentinel.ErrUnavailable.
func (m *MemoryBackend) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// LoseNextReplies makes the next n calls commit and then report a timeout,
// as when the node applies a write but the response never arrives.
func (m *MemoryBackend) LoseNextReplies(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost = n
}

// Effects returns a snapshot of what was applied for bookingID.
func (m *MemoryBackend) Effects(bookingID id.BookingID) Effects {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.effects[bookingID]; ok {
		return *e
	}
	return Effects{}
}

func (m *MemoryBackend) LockDeposit(_ context.Context, intent Intent, key string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	e := m.effectsFor(intent.BookingID)
	e.LockCalls++
	if r, ok := m.receipts[key]; ok {
		return &r, nil
	}
	e.Locked = intent.Amount
	return m.reply(m.record(key, intent))
}

func (m *MemoryBackend) Settle(_ context.Context, intent Intent, key string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	e := m.effectsFor(intent.BookingID)
	e.SettleCalls++
	if r, ok := m.receipts[key]; ok {
		return &r, nil
	}
	if intent.Split.Total() > e.Locked {
		return nil, fmt.Errorf("settle %d exceeds locked %d: %w", intent.Split.Total(), e.Locked, sentinel.ErrInvalidState)
	}
	e.Settled = true
	e.Split = intent.Split
	e.Locked -= intent.Split.Total()
	return m.reply(m.record(key, intent))
}

func (m *MemoryBackend) fail() error {
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("memory ledger: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (m *MemoryBackend) reply(r *Receipt) (*Receipt, error) {
	if m.lost > 0 {
		m.lost--
		return nil, fmt.Errorf("memory ledger reply lost: %w", context.DeadlineExceeded)
	}
	return r, nil
}

func (m *MemoryBackend) effectsFor(bookingID id.BookingID) *Effects {
	e, ok := m.effects[bookingID]
	if !ok {
		e = &Effects{}
		m.effects[bookingID] = e
	}
	return e
}

func (m *MemoryBackend) record(key string, intent Intent) *Receipt {
	m.seq++
	r := Receipt{
		Reference:   fmt.Sprintf("mem-%06d", m.seq),
		Amount:      intent.Amount,
		Split:       intent.Split,
		CommittedAt: m.now().UTC(),
	}
	m.receipts[key] = r
	return &r
}
