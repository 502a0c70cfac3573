package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

// fetchSegments downloads every not-yet-downloaded segment of the snapshot
// under a counting semaphore of opts.MaxConcurrentSegments permits. The
// number of segments is unbounded while permits are not, so each segment gets
// its own goroutine gated on an acquire rather than a fixed worker pool.
// The first failing segment cancels its peers through the group context.
func (e *Engine) fetchSegments(ctx context.Context, id string, opts types.DownloadOptions) error {
	snapshot := e.store.Get(id)
	if snapshot == nil {
		return fmt.Errorf("download %s vanished from store", id)
	}

	permits := int64(opts.MaxConcurrentSegments)
	if permits <= 0 {
		permits = types.DefaultMaxConcurrentSegments
	}
	sem := semaphore.NewWeighted(permits)

	g, gctx := errgroup.WithContext(ctx)
	for i := range snapshot.Segments {
		seg := snapshot.Segments[i]
		if seg.Downloaded {
			// Completed in a previous run; resume skips it entirely.
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			written, err := e.fetchSegment(gctx, seg, opts.Headers)
			if err != nil {
				return err
			}

			if next := e.store.MarkSegmentDownloaded(id, seg.Index, written); next != nil {
				e.emit(next)
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchSegment streams one segment to its part file and returns the byte
// count. A partial file left behind by a cancelled run is overwritten from
// scratch; there is no within-segment resume.
func (e *Engine) fetchSegment(ctx context.Context, seg types.SegmentInfo, headers map[string]string) (int64, error) {
	req, err := e.newRequest(ctx, seg.URL, headers)
	if err != nil {
		return 0, err
	}
	if seg.Range != nil {
		req.Header.Set("Range", seg.Range.Header())
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("segment %d: unexpected status %d", seg.Index, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(seg.TempFilePath), 0o755); err != nil {
		return 0, fmt.Errorf("segment %d: %w", seg.Index, err)
	}

	out, err := os.Create(seg.TempFilePath)
	if err != nil {
		return 0, fmt.Errorf("segment %d: %w", seg.Index, err)
	}

	written, copyErr := copyStream(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return written, fmt.Errorf("segment %d: %w", seg.Index, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("segment %d: %w", seg.Index, closeErr)
	}

	utils.Debug("Segment %d done: %d bytes -> %s", seg.Index, written, seg.TempFilePath)
	return written, nil
}

// copyStream copies with a fixed-size buffer so no segment is ever held in
// memory whole. Cancellation surfaces as a read error on the response body.
func copyStream(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, types.CopyBuffer)
	var written int64
	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
