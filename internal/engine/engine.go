// Package engine implements the segmented media download engine: playlist
// resolution and range probing, bounded-concurrency segment fetching, merge
// into a single artifact, and the pause/resume/cancel lifecycle with
// observable progress streams.
package engine

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("engine is closed")

// Engine coordinates all downloads of a process. All methods are safe for
// concurrent use. The engine owns every per-download task; Close cancels and
// joins them.
type Engine struct {
	client    *http.Client
	userAgent string

	store  *stateStore
	bus    *progressBus
	states *statesBus

	rootCtx    context.Context
	rootCancel context.CancelFunc
	closed     atomic.Bool
}

// Option customizes engine construction.
type Option func(*Engine)

// WithHTTPClient substitutes the shared HTTP client. The client must be safe
// for concurrent requests; timeouts, if wanted, belong in it.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithUserAgent overrides the default User-Agent applied when a download's
// headers carry none. An empty ua keeps the default.
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithProxyURL routes engine traffic through an HTTP or SOCKS5 proxy.
// Ignored when WithHTTPClient is also given.
func WithProxyURL(proxyURL string) Option {
	return func(e *Engine) {
		if e.client == nil {
			e.client = newHTTPClient(proxyURL)
		}
	}
}

// New builds a ready engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		userAgent: defaultUserAgent,
		store:     newStateStore(),
		bus:       newProgressBus(),
		states:    newStatesBus(),
	}
	e.rootCtx, e.rootCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = newHTTPClient("")
	}
	return e
}

// Init is an idempotent warm-up hook. The engine is usable without it.
func (e *Engine) Init() {}

// Download registers and starts a new download under a fresh id. The id is
// always returned. A non-nil error is either ErrClosed, after Close, when
// nothing is registered, or a planning failure, with the entry already
// recorded as FAILED with the same error.
func (e *Engine) Download(ctx context.Context, rawurl, outputPath string, opts types.DownloadOptions) (string, error) {
	id := uuid.New().String()
	return id, e.DownloadWithID(ctx, id, rawurl, outputPath, opts)
}

// DownloadWithID is Download with a caller-chosen id. An id already present
// in the store is a no-op: the existing state, completed or otherwise, is
// preserved.
func (e *Engine) DownloadWithID(ctx context.Context, id, rawurl, outputPath string, opts types.DownloadOptions) error {
	if e.closed.Load() {
		return ErrClosed
	}

	initial := &types.DownloadState{
		ID:              id,
		URL:             rawurl,
		OutputPath:      outputPath,
		SegmentCacheDir: segmentCacheDir(outputPath, id),
		Status:          types.StatusInitializing,
		MediaType:       types.MediaTypeFromURL(rawurl),
		Timestamp:       types.NowMillis(),
	}
	if !e.store.InsertOrReject(id, initial) {
		return nil
	}
	e.emit(initial)
	utils.Debug("Download %s registered: %s -> %s (%s)", id, rawurl, outputPath, initial.MediaType)

	// Planning runs inline on the caller: the cache dir is created eagerly
	// and a planner failure never attaches a task.
	if err := os.MkdirAll(initial.SegmentCacheDir, 0o755); err != nil {
		derr := types.NewError(types.ErrUnexpected, "create cache dir: %v", err)
		e.failPlanning(id, derr)
		return derr
	}

	segments, derr := e.planSegments(ctx, initial, opts.Headers)
	if derr != nil {
		e.failPlanning(id, derr)
		return derr
	}

	// A cancel may have landed while planning ran; its terminal status wins
	// and no task is launched.
	var tookOver bool
	next := e.store.Update(id, func(st *types.DownloadState) {
		if st.Status != types.StatusInitializing {
			tookOver = true
			return
		}
		st.Segments = segments
		st.TotalSegments = len(segments)
		st.Status = types.StatusDownloading
		st.Timestamp = types.NowMillis()
	})
	if tookOver {
		return nil
	}
	e.emit(next)

	e.launchTask(id, opts)
	return nil
}

func (e *Engine) failPlanning(id string, derr *types.DownloadError) {
	var tookOver bool
	next := e.store.Update(id, func(st *types.DownloadState) {
		if st.Status != types.StatusInitializing {
			tookOver = true
			return
		}
		st.Status = types.StatusFailed
		st.Err = derr
		st.Timestamp = types.NowMillis()
	})
	if tookOver {
		return
	}
	e.emit(next)
	utils.Debug("Download %s failed in planning: %v", id, derr)
}

// launchTask starts the per-download task. The state has already left
// INITIALIZING, so a caller returning from DownloadWithID has observed that
// transition no matter how the scheduler treats the new goroutine.
func (e *Engine) launchTask(id string, opts types.DownloadOptions) {
	ctx, cancel := context.WithCancel(e.rootCtx)
	h := newTaskHandle(cancel)
	e.store.AttachTask(id, h)
	go func() {
		defer close(h.done)
		defer cancel()
		e.run(ctx, id, h, opts)
	}()
}

// run is the body of a per-download task: fetch, then merge. Cancellation is
// a signal, not an error — the pause/cancel initiator owns the final status,
// so a cancelled run returns without transitioning.
func (e *Engine) run(ctx context.Context, id string, h *taskHandle, opts types.DownloadOptions) {
	err := e.fetchSegments(ctx, id, opts)

	if err == nil && ctx.Err() == nil {
		next := e.store.UpdateIfCurrent(id, h, func(st *types.DownloadState) {
			st.Status = types.StatusMerging
			st.Timestamp = types.NowMillis()
		})
		if next == nil {
			// A pause or cancel took the download over; its status is no
			// longer this task's to set.
			return
		}
		e.emit(next)
		err = e.mergeSegments(ctx, id)
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}

	// Guard against a pause/cancel that took over between the last ctx check
	// and here: only the still-attached task may set a terminal status.
	if !e.store.DetachIfCurrent(id, h) {
		return
	}

	next := e.store.Update(id, func(st *types.DownloadState) {
		if err != nil {
			st.Status = types.StatusFailed
			st.Err = asDownloadError(err)
		} else {
			st.Status = types.StatusCompleted
		}
		st.Timestamp = types.NowMillis()
	})
	e.emit(next)
	utils.Debug("Download %s finished: %s", id, next.Status)
}

func asDownloadError(err error) *types.DownloadError {
	var derr *types.DownloadError
	if errors.As(err, &derr) {
		return derr
	}
	return types.NewError(types.ErrUnexpected, "%v", err)
}

// Pause stops an active download, keeping its part files for resume. It
// reports false when no task is attached.
func (e *Engine) Pause(id string) bool {
	h, next, ok := e.store.DetachAndSetStatus(id, types.StatusPaused, true)
	if !ok {
		return false
	}
	if h != nil {
		h.cancel()
	}
	e.emit(next)
	utils.Debug("Download %s paused", id)
	return true
}

// Resume restarts a PAUSED or FAILED download, skipping segments already on
// disk. A download whose task is still live resumes trivially. The original
// call's options are not persisted; resume runs with defaults.
func (e *Engine) Resume(ctx context.Context, id string) bool {
	if e.closed.Load() {
		return false
	}
	next, launch, ok := e.store.BeginResume(id)
	if !ok {
		return false
	}
	if !launch {
		return true
	}
	e.emit(next)
	e.launchTask(id, types.DefaultOptions())
	utils.Debug("Download %s resumed", id)
	return true
}

// Cancel aborts a download and forces CANCELED, whatever its prior status.
// Only a missing id reports false. Part files and the cache dir are left on
// disk; cleanup is the caller's business.
func (e *Engine) Cancel(id string) bool {
	h, next, ok := e.store.DetachAndSetStatus(id, types.StatusCanceled, false)
	if !ok {
		return false
	}
	if h != nil {
		h.cancel()
	}
	e.emit(next)
	utils.Debug("Download %s canceled", id)
	return true
}

// PauseAll pauses every download with an active task and returns their ids.
func (e *Engine) PauseAll() []string {
	var paused []string
	for _, st := range e.store.All() {
		if e.Pause(st.ID) {
			paused = append(paused, st.ID)
		}
	}
	return paused
}

// CancelAll cancels every non-terminal download. Terminal entries stay
// untouched.
func (e *Engine) CancelAll() {
	for _, st := range e.store.All() {
		if st.Status.Terminal() {
			continue
		}
		e.Cancel(st.ID)
	}
}

// State returns the current snapshot for id.
func (e *Engine) State(id string) (types.DownloadState, bool) {
	st := e.store.Get(id)
	if st == nil {
		return types.DownloadState{}, false
	}
	return *st, true
}

// AllStates returns snapshots of every known download in insertion order.
func (e *Engine) AllStates() []types.DownloadState {
	return derefStates(e.store.All())
}

// ActiveDownloadIDs lists downloads still initializing or downloading.
func (e *Engine) ActiveDownloadIDs() []string {
	var ids []string
	for _, st := range e.store.All() {
		if st.Status.Active() {
			ids = append(ids, st.ID)
		}
	}
	return ids
}

// ProgressFlow streams progress for all downloads, replaying the last
// emitted snapshot to late subscribers.
func (e *Engine) ProgressFlow(ctx context.Context) <-chan types.DownloadProgress {
	var initial []types.DownloadProgress
	if last, ok := e.bus.Last(); ok {
		initial = append(initial, last)
	}
	return e.bus.Subscribe(ctx, "", initial)
}

// DownloadProgressFlow streams progress for one download. The first element
// is a fresh snapshot of the current state, if any, so subscribers never
// wait for the next mutation to see a value.
func (e *Engine) DownloadProgressFlow(ctx context.Context, id string) <-chan types.DownloadProgress {
	var initial []types.DownloadProgress
	if st := e.store.Get(id); st != nil {
		initial = append(initial, types.ProgressOf(st))
	}
	return e.bus.Subscribe(ctx, id, initial)
}

// DownloadStatesFlow streams the whole state list on every mutation.
func (e *Engine) DownloadStatesFlow(ctx context.Context) <-chan []types.DownloadState {
	return e.states.Subscribe(ctx)
}

// JoinDownload blocks until the download's task, if any, has finished.
func (e *Engine) JoinDownload(ctx context.Context, id string) error {
	h := e.store.Task(id)
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every task, joins them, empties the store and shuts the
// progress streams. The engine accepts no further work afterwards.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.rootCancel()
	for _, h := range e.store.Handles() {
		<-h.done
	}
	e.store.Clear()
	e.bus.Close()
	e.states.Close()
}

// emit publishes a progress snapshot and the refreshed state list. Called
// outside the store mutex so subscriber work never couples with it.
func (e *Engine) emit(st *types.DownloadState) {
	if st == nil {
		return
	}
	e.bus.Publish(types.ProgressOf(st))
	e.states.Publish(derefStates(e.store.All()))
}

func derefStates(in []*types.DownloadState) []types.DownloadState {
	out := make([]types.DownloadState, len(in))
	for i, st := range in {
		out[i] = *st
	}
	return out
}
