package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"rentguard/internal/ledger"
	"rentguard/internal/ledger/mocks"
	"rentguard/pkg/platform/sentinel"
)

type LedgerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	backend *mocks.MockBackend
	journal *ledger.MemoryJournal
	ledger  *ledger.Ledger
	ctx     context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.backend = mocks.NewMockBackend(s.ctrl)
	s.journal = ledger.NewMemoryJournal()
	s.ledger = ledger.New(s.backend, s.journal)
	s.ctx = context.Background()
}

func (s *LedgerSuite) TestLockDepositCommitsOnce() {
	intent := ledger.LockIntent(7, 500)
	s.backend.EXPECT().
		LockDeposit(gomock.Any(), intent, "booking:7:lock_deposit").
		Return(&ledger.Receipt{Reference: "ref-1", Amount: 500}, nil).
		Times(1)

	first, err := s.ledger.LockDeposit(s.ctx, intent)
	s.Require().NoError(err)
	s.Equal("ref-1", first.Reference)
	s.False(first.Replayed)

	second, err := s.ledger.LockDeposit(s.ctx, intent)
	s.Require().NoError(err)
	s.Equal("ref-1", second.Reference)
	s.True(second.Replayed)
}

func (s *LedgerSuite) TestMismatchedPayloadIsRejected() {
	s.backend.EXPECT().
		Settle(gomock.Any(), gomock.Any(), "booking:7:settle").
		Return(&ledger.Receipt{Reference: "ref-1"}, nil)

	_, err := s.ledger.Settle(s.ctx, ledger.SettleIntent(7, ledger.Split{TenantRefund: 100}))
	s.Require().NoError(err)

	_, err = s.ledger.Settle(s.ctx, ledger.SettleIntent(7, ledger.Split{HostPayout: 100}))
	s.ErrorIs(err, ledger.ErrIdempotencyMismatch)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *LedgerSuite) TestBackendFailureIsNotJournaled() {
	intent := ledger.LockIntent(3, 10)
	gomock.InOrder(
		s.backend.EXPECT().LockDeposit(gomock.Any(), intent, gomock.Any()).
			Return(nil, sentinel.ErrUnavailable),
		s.backend.EXPECT().LockDeposit(gomock.Any(), intent, gomock.Any()).
			Return(&ledger.Receipt{Reference: "ref-2"}, nil),
	)

	_, err := s.ledger.LockDeposit(s.ctx, intent)
	s.ErrorIs(err, sentinel.ErrUnavailable)

	r, err := s.ledger.LockDeposit(s.ctx, intent)
	s.Require().NoError(err)
	s.Equal("ref-2", r.Reference)
}

func (s *LedgerSuite) TestRejectsWrongIntentType() {
	_, err := s.ledger.Settle(s.ctx, ledger.LockIntent(1, 1))
	s.ErrorIs(err, ledger.ErrRejected)
	s.True(ledger.Definite(err))
	_, err = s.ledger.LockDeposit(s.ctx, ledger.Intent{Type: ledger.IntentLockDeposit, Amount: 1})
	s.ErrorIs(err, ledger.ErrRejected)
}

func TestDefinite(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rejected", fmt.Errorf("rpc: %w", ledger.ErrRejected), true},
		{"idempotency mismatch", fmt.Errorf("k: %w", ledger.ErrIdempotencyMismatch), true},
		{"invalid state", fmt.Errorf("oversettle: %w", sentinel.ErrInvalidState), true},
		{"unavailable", fmt.Errorf("rpc: %w", sentinel.ErrUnavailable), false},
		{"deadline", fmt.Errorf("rpc: %w", context.DeadlineExceeded), false},
		{"unclassified", errors.New("decode failure"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.Definite(tt.err))
		})
	}
}

func TestMemoryBackendLoseNextReplies(t *testing.T) {
	backend := ledger.NewMemoryBackend()
	backend.LoseNextReplies(1)
	ctx := context.Background()

	_, err := backend.LockDeposit(ctx, ledger.LockIntent(1, 5), "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(5), backend.Effects(1).Locked)

	r, err := backend.LockDeposit(ctx, ledger.LockIntent(1, 5), "k")
	require.NoError(t, err)
	assert.NotEmpty(t, r.Reference)
	assert.Equal(t, int64(5), backend.Effects(1).Locked)
}

// TestIdempotentSettlement verifies repeated and concurrent settle calls
// with the same booking and split leave one ledger effect.
func TestIdempotentSettlement(t *testing.T) {
	backend := ledger.NewMemoryBackend()
	l := ledger.New(backend, ledger.NewMemoryJournal())
	ctx := context.Background()

	if _, err := l.LockDeposit(ctx, ledger.LockIntent(9, 1000)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	split := ledger.Split{TenantRefund: 1000}

	var wg sync.WaitGroup
	refs := make([]string, 20)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := l.Settle(ctx, ledger.SettleIntent(9, split))
			if err == nil {
				refs[i] = r.Reference
			}
		}(i)
	}
	wg.Wait()

	for _, ref := range refs {
		if ref == "" || ref != refs[0] {
			t.Fatalf("settle references differ: %v", refs)
		}
	}
	e := backend.Effects(9)
	if !e.Settled || e.Split != split || e.Locked != 0 {
		t.Fatalf("unexpected effects: %+v", e)
	}
	if e.SettleCalls != 1 {
		t.Fatalf("backend settled %d times", e.SettleCalls)
	}
}

func TestMemoryBackendFailNext(t *testing.T) {
	backend := ledger.NewMemoryBackend()
	backend.FailNext(1)
	_, err := backend.LockDeposit(context.Background(), ledger.LockIntent(1, 5), "k")
	if !errors.Is(err, sentinel.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := backend.LockDeposit(context.Background(), ledger.LockIntent(1, 5), "k"); err != nil {
		t.Fatalf("second call: %v", err)
	}
}

func TestMemoryBackendRejectsOversettle(t *testing.T) {
	backend := ledger.NewMemoryBackend()
	_, err := backend.Settle(context.Background(), ledger.SettleIntent(1, ledger.Split{HostPayout: 5}), "k")
	if !errors.Is(err, sentinel.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestIntentKeyAndFingerprint(t *testing.T) {
	a := ledger.SettleIntent(4, ledger.Split{TenantRefund: 1, HostPayout: 2})
	b := ledger.SettleIntent(4, ledger.Split{TenantRefund: 2, HostPayout: 1})
	if a.Key() != "booking:4:settle" || a.Key() != b.Key() {
		t.Fatalf("unexpected keys %q %q", a.Key(), b.Key())
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("different splits share a fingerprint")
	}
}
