package engine

import (
	"context"
	"sync"

	"github.com/Curodenz/animeko/internal/engine/types"
)

// taskHandle is the engine's grip on a running per-download task. Handles are
// stored alongside state but never escape to callers.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newTaskHandle(cancel context.CancelFunc) *taskHandle {
	return &taskHandle{cancel: cancel, done: make(chan struct{})}
}

type storeEntry struct {
	state *types.DownloadState
	task  *taskHandle
}

// stateStore owns the DownloadId -> (state, task) map. Every read and write
// goes through its mutex; stored states are immutable and replaced wholesale.
// Progress emissions happen outside the mutex, in the callers.
type stateStore struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	order   []string
}

func newStateStore() *stateStore {
	return &stateStore{entries: make(map[string]*storeEntry)}
}

// Get returns the current snapshot for id, or nil.
func (s *stateStore) Get(id string) *types.DownloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.state
	}
	return nil
}

// All returns the snapshots of every download in insertion order.
func (s *stateStore) All() []*types.DownloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.DownloadState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].state)
	}
	return out
}

// InsertOrReject registers a new download. Pre-existing entries are treated
// as already handled: the stored state wins and false is returned.
func (s *stateStore) InsertOrReject(id string, initial *types.DownloadState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return false
	}
	s.entries[id] = &storeEntry{state: initial}
	s.order = append(s.order, id)
	return true
}

// Update applies transform to a clone of the current state and publishes the
// result. It returns the new snapshot, or nil when id is absent.
func (s *stateStore) Update(id string, transform func(*types.DownloadState)) *types.DownloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	next := e.state.Clone()
	transform(next)
	e.state = next
	return next
}

// UpdateIfCurrent applies transform only while h is still the attached task.
// A pause or cancel that has taken over detaches first, so a stale task
// cannot clobber the status the initiator chose.
func (s *stateStore) UpdateIfCurrent(id string, h *taskHandle, transform func(*types.DownloadState)) *types.DownloadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.task != h {
		return nil
	}
	next := e.state.Clone()
	transform(next)
	e.state = next
	return next
}

// AttachTask stores the handle of a freshly launched task.
func (s *stateStore) AttachTask(id string, h *taskHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.task = h
	}
}

// DetachIfCurrent clears the task slot if it still holds h. It reports
// whether h was the attached task, which guards the task's own terminal
// transition against a concurrent pause or cancel that already took over.
func (s *stateStore) DetachIfCurrent(id string, h *taskHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.task != h {
		return false
	}
	e.task = nil
	return true
}

// Task returns the currently attached handle, or nil.
func (s *stateStore) Task(id string) *taskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.task
	}
	return nil
}

// DetachAndSetStatus atomically detaches any task and moves the download to
// newStatus. With requireTask set the transition only happens when a task is
// actually attached (pause semantics); cancel forces the status regardless.
// It returns the detached handle, the new snapshot and whether the
// transition happened. Pause and cancel own the final status of a run they
// interrupt; the cancelled task itself must not set one.
func (s *stateStore) DetachAndSetStatus(id string, newStatus types.DownloadStatus, requireTask bool) (*taskHandle, *types.DownloadState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil, false
	}
	if requireTask && e.task == nil {
		return nil, nil, false
	}
	h := e.task
	e.task = nil
	next := e.state.Clone()
	next.Status = newStatus
	next.Timestamp = types.NowMillis()
	e.state = next
	return h, next, true
}

// BeginResume validates and applies the resume transition atomically.
// Returns the snapshot to act on, whether a fresh task must be launched, and
// whether the resume is accepted at all. A download with a live task resumes
// trivially; only PAUSED or FAILED entries get a new run.
func (s *stateStore) BeginResume(id string) (*types.DownloadState, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false, false
	}
	if e.task != nil {
		return e.state, false, true
	}
	if e.state.Status != types.StatusPaused && e.state.Status != types.StatusFailed {
		return nil, false, false
	}
	next := e.state.Clone()
	next.Status = types.StatusDownloading
	next.Err = nil
	next.Timestamp = types.NowMillis()
	e.state = next
	return next, true, true
}

// MarkSegmentDownloaded records a completed segment: flips Downloaded, stores
// the actual size and bumps downloadedBytes, all under the mutex.
func (s *stateStore) MarkSegmentDownloaded(id string, index int, size int64) *types.DownloadState {
	return s.Update(id, func(st *types.DownloadState) {
		for i := range st.Segments {
			seg := &st.Segments[i]
			if seg.Index != index || seg.Downloaded {
				continue
			}
			seg.Downloaded = true
			seg.ByteSize = size
			st.DownloadedBytes += size
			return
		}
	})
}

// Clear cancels nothing and forgets everything; Close drains tasks first.
func (s *stateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*storeEntry)
	s.order = nil
}

// Handles returns every attached task handle.
func (s *stateStore) Handles() []*taskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*taskHandle
	for _, e := range s.entries {
		if e.task != nil {
			out = append(out, e.task)
		}
	}
	return out
}
