package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

// segmentCacheDir is the per-download directory holding part files until
// merge: "<name>_segments_<id>" next to the output file. A bare filename
// resolves against the process working directory.
func segmentCacheDir(outputPath, id string) string {
	parent := filepath.Dir(outputPath)
	name := filepath.Base(outputPath)
	return filepath.Join(parent, name+"_segments_"+id)
}

// planSegments produces the full segment plan for a download. Failures come
// back as a *types.DownloadError so the caller can record them on the state.
func (e *Engine) planSegments(ctx context.Context, st *types.DownloadState, headers map[string]string) ([]types.SegmentInfo, *types.DownloadError) {
	if st.MediaType == types.MediaTypeM3U8 {
		return e.planPlaylist(ctx, st, headers)
	}
	return e.planRanged(ctx, st, headers)
}

// planPlaylist resolves the playlist down to a media playlist and maps its
// segments. Segment indices start at the playlist's media sequence number.
func (e *Engine) planPlaylist(ctx context.Context, st *types.DownloadState, headers map[string]string) ([]types.SegmentInfo, *types.DownloadError) {
	media, baseURL, derr := e.resolveMediaPlaylist(ctx, st.URL, headers, 0)
	if derr != nil {
		return nil, derr
	}

	count := int(media.Count())
	segments := make([]types.SegmentInfo, 0, count)
	for i := 0; i < count; i++ {
		seg := media.Segments[i]
		if seg == nil {
			break
		}
		index := int(media.SeqNo) + i
		size := int64(-1)
		if seg.Limit > 0 {
			// EXT-X-BYTERANGE length is recorded as the expected size, but
			// the segment is still fetched as a whole URI, not a Range
			// request.
			size = seg.Limit
		}
		segments = append(segments, types.SegmentInfo{
			Index:        index,
			URL:          absoluteURL(baseURL, seg.URI),
			ByteSize:     size,
			TempFilePath: filepath.Join(st.SegmentCacheDir, strconv.Itoa(index)+".ts"),
		})
	}
	return segments, nil
}

// resolveMediaPlaylist follows master playlists until a media playlist turns
// up, picking the highest-bandwidth variant at each level (first wins on a
// tie). Recursion deeper than MaxPlaylistDepth is a NO_MEDIA_LIST failure.
func (e *Engine) resolveMediaPlaylist(ctx context.Context, rawurl string, headers map[string]string, depth int) (*m3u8.MediaPlaylist, *url.URL, *types.DownloadError) {
	if depth >= types.MaxPlaylistDepth {
		return nil, nil, types.NewError(types.ErrNoMediaList, "playlist recursion exceeded depth %d at %s", types.MaxPlaylistDepth, rawurl)
	}

	req, err := e.newRequest(ctx, rawurl, headers)
	if err != nil {
		return nil, nil, types.NewError(types.ErrUnexpected, "bad playlist URL: %v", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, types.NewError(types.ErrUnexpected, "playlist request failed: %v", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, types.NewError(types.ErrUnexpected, "playlist request returned %d for %s", resp.StatusCode, rawurl)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, nil, types.NewError(types.ErrUnexpected, "playlist parse failed: %v", err)
	}

	base, err := url.Parse(rawurl)
	if err != nil {
		return nil, nil, types.NewError(types.ErrUnexpected, "bad playlist URL: %v", err)
	}

	switch listType {
	case m3u8.MEDIA:
		return playlist.(*m3u8.MediaPlaylist), base, nil

	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		var best *m3u8.Variant
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			if best == nil || v.Bandwidth > best.Bandwidth {
				best = v
			}
		}
		if best == nil {
			return nil, nil, types.NewError(types.ErrNoMediaList, "master playlist has no variants: %s", rawurl)
		}
		utils.Debug("Following variant bandwidth=%d uri=%s (depth %d)", best.Bandwidth, best.URI, depth)
		return e.resolveMediaPlaylist(ctx, absoluteURL(base, best.URI), headers, depth+1)

	default:
		return nil, nil, types.NewError(types.ErrNoMediaList, "unrecognized playlist type at %s", rawurl)
	}
}

// absoluteURL resolves a possibly-relative playlist URI against its base.
func absoluteURL(base *url.URL, uri string) string {
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// probeResult carries what a range probe learned about the server.
type probeResult struct {
	contentLength int64
	rangeSupport  bool
}

// probeServer sends GET with Range: bytes=0-0 to determine server
// capabilities. A nil result means the probe failed; the planner then falls
// back to a single unranged segment rather than failing the download.
func (e *Engine) probeServer(ctx context.Context, rawurl string, headers map[string]string) *probeResult {
	req, err := e.newRequest(ctx, rawurl, headers)
	if err != nil {
		return nil
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := e.client.Do(req)
	if err != nil {
		utils.Debug("Probe request failed: %v", err)
		return nil
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if !ok {
			utils.Debug("Probe got 206 with unusable Content-Range %q", resp.Header.Get("Content-Range"))
			return nil
		}
		return &probeResult{contentLength: total, rangeSupport: true}

	case http.StatusOK:
		// Server ignores Range; Content-Length may legitimately be absent.
		length := int64(-1)
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil {
				length = parsed
			}
		}
		return &probeResult{contentLength: length, rangeSupport: false}

	default:
		utils.Debug("Probe got unexpected status %d", resp.StatusCode)
		return nil
	}
}

// parseContentRangeTotal extracts the complete length from a header shaped
// like "bytes 0-0/12345". An unknown total ("*") or malformed header fails.
func parseContentRangeTotal(header string) (int64, bool) {
	idx := strings.LastIndex(header, "/")
	if header == "" || idx == -1 {
		return 0, false
	}
	sizeStr := header[idx+1:]
	if sizeStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// planRanged probes the server and splits the file into fixed-size ranged
// segments, or a single whole-file segment when ranges are unavailable.
func (e *Engine) planRanged(ctx context.Context, st *types.DownloadState, headers map[string]string) ([]types.SegmentInfo, *types.DownloadError) {
	partPath := func(index int) string {
		return filepath.Join(st.SegmentCacheDir, fmt.Sprintf("%d.part", index))
	}

	probe := e.probeServer(ctx, st.URL, headers)
	if probe == nil || !probe.rangeSupport {
		size := int64(-1)
		if probe != nil {
			size = probe.contentLength
		}
		return []types.SegmentInfo{{
			Index:        0,
			URL:          st.URL,
			ByteSize:     size,
			TempFilePath: partPath(0),
		}}, nil
	}

	total := probe.contentLength
	if total <= types.SegmentSize {
		return []types.SegmentInfo{{
			Index:        0,
			URL:          st.URL,
			Range:        &types.ByteRange{Start: 0, End: total - 1},
			ByteSize:     total,
			TempFilePath: partPath(0),
		}}, nil
	}

	var segments []types.SegmentInfo
	for index, offset := 0, int64(0); offset < total; index, offset = index+1, offset+types.SegmentSize {
		end := offset + types.SegmentSize - 1
		if end > total-1 {
			end = total - 1
		}
		segments = append(segments, types.SegmentInfo{
			Index:        index,
			URL:          st.URL,
			Range:        &types.ByteRange{Start: offset, End: end},
			ByteSize:     end - offset + 1,
			TempFilePath: partPath(index),
		})
	}
	return segments, nil
}
