//go:build integration

package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rentguard/internal/ledger"
	"rentguard/pkg/platform/sentinel"
	"rentguard/pkg/testutil/containers"
)

type RedisJournalSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	journal *ledger.RedisJournal
}

func TestRedisJournalSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisJournalSuite))
}

func (s *RedisJournalSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.journal = ledger.NewRedisJournal(s.redis.Client, time.Hour)
}

func (s *RedisJournalSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisJournalSuite) TestFirstWriterWins() {
	ctx := context.Background()
	_, err := s.journal.Get(ctx, "booking:1:settle")
	s.ErrorIs(err, sentinel.ErrNotFound)

	first := &ledger.Receipt{Key: "booking:1:settle", Reference: "a", Fingerprint: "fp-a"}
	stored, err := s.journal.PutIfAbsent(ctx, first.Key, first)
	s.Require().NoError(err)
	s.Equal("a", stored.Reference)

	second := &ledger.Receipt{Key: "booking:1:settle", Reference: "b", Fingerprint: "fp-b"}
	stored, err = s.journal.PutIfAbsent(ctx, second.Key, second)
	s.Require().NoError(err)
	s.Equal("a", stored.Reference)
	s.Equal("fp-a", stored.Fingerprint)
}

func (s *RedisJournalSuite) TestLedgerOverRedisReplays() {
	ctx := context.Background()
	backend := ledger.NewMemoryBackend()
	l := ledger.New(backend, s.journal)
	r1, err := l.LockDeposit(ctx, ledger.LockIntent(5, 100))
	s.Require().NoError(err)

	// A second instance sharing the journal sees the committed receipt.
	other := ledger.New(ledger.NewMemoryBackend(), s.journal)
	r2, err := other.LockDeposit(ctx, ledger.LockIntent(5, 100))
	s.Require().NoError(err)
	s.Equal(r1.Reference, r2.Reference)
	s.True(r2.Replayed)
}
