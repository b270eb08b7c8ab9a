package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "rentguard/pkg/domain"
	audit "rentguard/pkg/platform/audit"
	"rentguard/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{BookingID: 1, Type: audit.EventBookingRequested})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventBookingRequested, events[0].Type)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{BookingID: 2, Type: audit.EventBookingTransitioned}))
	}
	pub.Close()
	pub.Close()

	events, err := store.ListByBooking(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")

	assert.ErrorIs(t, pub.Emit(context.Background(), audit.Event{BookingID: 2}), ErrClosed)
}

func TestPublisher_BufferFullDoesNotBlock(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{BookingID: 3})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_Timestamps(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))

	custom := fixed.Add(-time.Hour)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{BookingID: 4}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{BookingID: 4, Timestamp: custom}))

	events, err := pub.List(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, custom, events[1].Timestamp)
}

func TestPublisher_CancelledContext(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer pub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Emit(ctx, audit.Event{BookingID: 5}), context.Canceled)
}

type failingSink struct{ calls int }

func (f *failingSink) Append(context.Context, audit.Event) error {
	f.calls++
	return errors.New("sink down")
}

func TestPublisher_SinkFailureDoesNotFailEmit(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &failingSink{}
	pub := NewPublisher(store, WithSinks(sink))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{BookingID: 6, Type: audit.EventBookingSettled}))
	assert.Equal(t, 1, sink.calls)

	events, err := store.ListByBooking(context.Background(), id.BookingID(6))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}
