//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "rentguard/pkg/platform/audit"
	"rentguard/pkg/testutil/containers"
)

func TestSinkRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "rentguard.audit.test"
	producer, err := NewClient(rp.Brokers, topic)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1))
	require.NoError(t, EnsureTopic(ctx, producer, topic, 1, 1), "second call is a no-op")

	sink := NewSink(producer, topic)
	require.NoError(t, sink.Ping(ctx))
	sent := audit.Event{
		ID:        "evt-1",
		Type:      audit.EventBookingSettled,
		Category:  audit.CategoryCompliance,
		BookingID: 42,
		Amount:    1000,
		Timestamp: time.Date(2026, 6, 5, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Append(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	var got []audit.Event
	fetches.EachRecord(func(r *kgo.Record) {
		require.Equal(t, "42", string(r.Key))
		e, err := Decode(r)
		require.NoError(t, err)
		got = append(got, e)
	})
	require.Len(t, got, 1)
	require.Equal(t, sent.ID, got[0].ID)
	require.Equal(t, sent.Amount, got[0].Amount)
	require.True(t, sent.Timestamp.Equal(got[0].Timestamp))
}
