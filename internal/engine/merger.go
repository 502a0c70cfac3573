package engine

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

// mergeSegments concatenates the part files into the output path in ascending
// index order with a streaming copy, then removes the parts and the cache
// dir. Cancellation is only observed between segments; an interrupted merge
// may leave a partial output and the cache dir behind.
func (e *Engine) mergeSegments(ctx context.Context, id string) error {
	snapshot := e.store.Get(id)
	if snapshot == nil {
		return fmt.Errorf("download %s vanished from store", id)
	}

	segments := make([]types.SegmentInfo, len(snapshot.Segments))
	copy(segments, snapshot.Segments)
	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })

	out, err := os.Create(snapshot.OutputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}
		if err := appendFile(out, seg.TempFilePath); err != nil {
			out.Close()
			return fmt.Errorf("merge segment %d: %w", seg.Index, err)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync output: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	// Cache cleanup only after the output is fully on disk.
	for _, seg := range segments {
		if err := os.Remove(seg.TempFilePath); err != nil && !os.IsNotExist(err) {
			utils.Debug("Failed to remove part file %s: %v", seg.TempFilePath, err)
		}
	}
	if err := os.Remove(snapshot.SegmentCacheDir); err != nil && !os.IsNotExist(err) {
		utils.Debug("Failed to remove cache dir %s: %v", snapshot.SegmentCacheDir, err)
	}

	utils.Debug("Merged %d segments into %s", len(segments), snapshot.OutputPath)
	return nil
}

// appendFile streams one part file onto the output using the shared
// fixed-size buffer copy.
func appendFile(dst *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = copyStream(dst, in)
	return err
}
