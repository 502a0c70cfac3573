package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Curodenz/animeko/internal/engine/types"
)

func progressFor(id string, status types.DownloadStatus) types.DownloadProgress {
	return types.DownloadProgress{ID: id, Status: status}
}

func recvProgress(t *testing.T, ch <-chan types.DownloadProgress) types.DownloadProgress {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for progress")
		return types.DownloadProgress{}
	}
}

func TestProgressBusReplaysLastToLateSubscriber(t *testing.T) {
	b := newProgressBus()
	defer b.Close()

	b.Publish(progressFor("a", types.StatusDownloading))

	last, ok := b.Last()
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "", []types.DownloadProgress{last})

	got := recvProgress(t, ch)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, types.StatusDownloading, got.Status)
}

func TestProgressBusFiltersByID(t *testing.T) {
	b := newProgressBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "wanted", nil)

	b.Publish(progressFor("other", types.StatusDownloading))
	b.Publish(progressFor("wanted", types.StatusMerging))

	got := recvProgress(t, ch)
	assert.Equal(t, "wanted", got.ID)
	assert.Equal(t, types.StatusMerging, got.Status)
}

func TestProgressBusOverflowDropsOldest(t *testing.T) {
	b := newProgressBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "", nil)

	// Publish more than the buffer can hold without reading anything; the
	// publisher must not block and the newest value must survive.
	total := types.ProgressBuffer + 16
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			b.Publish(types.DownloadProgress{ID: "a", DownloadedBytes: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	var got types.DownloadProgress
	deadline := time.After(2 * time.Second)
	for {
		var ok bool
		select {
		case got, ok = <-ch:
			require.True(t, ok)
		case <-deadline:
			t.Fatal("never drained the newest snapshot")
		}
		if got.DownloadedBytes == int64(total-1) {
			return // newest value arrived; oldest were the ones dropped
		}
	}
}

func TestProgressBusSubscriptionEndsWithContext(t *testing.T) {
	b := newProgressBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, "", nil)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must close after context cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestProgressBusCloseEndsSubscribers(t *testing.T) {
	b := newProgressBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "", nil)

	b.Close()
	b.Publish(progressFor("a", types.StatusCompleted)) // must be a no-op

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after bus close")
	}

	// Subscribing after close yields an already-closed stream.
	ch2 := b.Subscribe(ctx, "", nil)
	_, ok := <-ch2
	assert.False(t, ok)
}

func TestStatesBusReplaysAndStreams(t *testing.T) {
	b := newStatesBus()
	defer b.Close()

	b.Publish([]types.DownloadState{{ID: "a", Status: types.StatusDownloading}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	select {
	case states := <-ch:
		require.Len(t, states, 1)
		assert.Equal(t, "a", states[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no replay of last state list")
	}

	b.Publish([]types.DownloadState{{ID: "a"}, {ID: "b"}})
	select {
	case states := <-ch:
		assert.Len(t, states, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no live emission")
	}
}
