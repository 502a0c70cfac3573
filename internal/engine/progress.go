package engine

import (
	"context"
	"sync"

	"github.com/Curodenz/animeko/internal/engine/types"
)

// progressSub is one subscriber of the shared progress stream. An empty id
// means "all downloads".
type progressSub struct {
	ch chan types.DownloadProgress
	id string
}

// progressBus broadcasts progress snapshots to subscribers. It keeps the last
// published value for replay to late subscribers, and each subscriber gets a
// bounded buffer: when full, the oldest buffered snapshot is dropped so the
// publisher never blocks on slow consumer work.
type progressBus struct {
	mu     sync.Mutex
	last   *types.DownloadProgress
	subs   map[*progressSub]struct{}
	closed bool
}

func newProgressBus() *progressBus {
	return &progressBus{subs: make(map[*progressSub]struct{})}
}

func (b *progressBus) Publish(p types.DownloadProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = &p
	for sub := range b.subs {
		if sub.id != "" && sub.id != p.ID {
			continue
		}
		offer(sub.ch, p)
	}
}

// offer enqueues p, evicting the oldest element when the buffer is full.
func offer(ch chan types.DownloadProgress, p types.DownloadProgress) {
	for {
		select {
		case ch <- p:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Subscribe registers a stream filtered by id (empty = all). The initial
// snapshots are delivered before any live emission. The subscription ends
// when ctx is done or the bus closes; the returned channel is then closed.
func (b *progressBus) Subscribe(ctx context.Context, id string, initial []types.DownloadProgress) <-chan types.DownloadProgress {
	sub := &progressSub{ch: make(chan types.DownloadProgress, types.ProgressBuffer), id: id}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch := make(chan types.DownloadProgress)
		close(ch)
		return ch
	}
	for _, p := range initial {
		offer(sub.ch, p)
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	out := make(chan types.DownloadProgress)
	go func() {
		defer close(out)
		defer b.unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-sub.ch:
				if !ok {
					return
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Last returns the most recently published snapshot, if any.
func (b *progressBus) Last() (types.DownloadProgress, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return types.DownloadProgress{}, false
	}
	return *b.last, true
}

func (b *progressBus) unsubscribe(sub *progressSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

func (b *progressBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*progressSub]struct{})
}

// statesSub mirrors progressSub for whole-store snapshots.
type statesSub struct {
	ch chan []types.DownloadState
}

// statesBus broadcasts the full list of states on every mutation.
type statesBus struct {
	mu     sync.Mutex
	last   []types.DownloadState
	subs   map[*statesSub]struct{}
	closed bool
}

func newStatesBus() *statesBus {
	return &statesBus{subs: make(map[*statesSub]struct{})}
}

func (b *statesBus) Publish(states []types.DownloadState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = states
	for sub := range b.subs {
		for {
			select {
			case sub.ch <- states:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (b *statesBus) Subscribe(ctx context.Context) <-chan []types.DownloadState {
	sub := &statesSub{ch: make(chan []types.DownloadState, types.ProgressBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ch := make(chan []types.DownloadState)
		close(ch)
		return ch
	}
	if b.last != nil {
		sub.ch <- b.last
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	out := make(chan []types.DownloadState)
	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-sub.ch:
				if !ok {
					return
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (b *statesBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*statesSub]struct{})
}
