package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/oya-go/pkg/models"
)

func TestPublishSubscribeOrdering(t *testing.T) {
	b := NewBus(10)
	defer b.Close()

	ch, err := b.Subscribe("sub1", nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, Event{BeadID: "bead", To: models.BeadRunning}))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestSubscribeIsIdempotentByID(t *testing.T) {
	b := NewBus(10)
	defer b.Close()

	ch1, err := b.Subscribe("sub1", nil)
	require.NoError(t, err)
	ch2, err := b.Subscribe("sub1", func(Event) bool { return true })
	require.NoError(t, err)

	if ch1 != ch2 {
		t.Errorf("expected same channel for repeated subscribe with same id")
	}
	require.Len(t, b.SubscriberIDs(), 1)
}

func TestFilterExcludesNonMatchingEvents(t *testing.T) {
	b := NewBus(10)
	defer b.Close()

	ch, err := b.Subscribe("sub1", func(ev Event) bool { return ev.BeadID == "wanted" })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Event{BeadID: "unwanted"}))
	require.NoError(t, b.Publish(ctx, Event{BeadID: "wanted"}))

	select {
	case ev := <-ch:
		require.Equal(t, "wanted", ev.BeadID)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for filtered event")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := NewBus(10)
	b.Close()
	err := b.Publish(context.Background(), Event{BeadID: "bead"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestBufferFullReportsError(t *testing.T) {
	b := NewBus(1)
	defer b.Close()
	ctx := context.Background()
	// No subscriber draining; the dispatch loop itself will pull one off
	// almost immediately, so fill faster than it can drain by publishing
	// a burst without yielding.
	var lastErr error
	for i := 0; i < 1000; i++ {
		if err := b.Publish(ctx, Event{BeadID: "bead"}); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr != nil {
		require.ErrorIs(t, lastErr, ErrBufferFull)
	}
}
