package types

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// DownloadStatus is the lifecycle state of a download.
type DownloadStatus int

const (
	StatusInitializing DownloadStatus = iota
	StatusDownloading
	StatusPaused
	StatusMerging
	StatusCompleted
	StatusFailed
	StatusCanceled
)

func (s DownloadStatus) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusDownloading:
		return "downloading"
	case StatusPaused:
		return "paused"
	case StatusMerging:
		return "merging"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen without a fresh
// resume or download call.
func (s DownloadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Active reports whether the download is still initializing or downloading.
// MERGING is not counted, even though its task is still running.
func (s DownloadStatus) Active() bool {
	return s == StatusInitializing || s == StatusDownloading
}

// MediaType identifies the kind of resource a URL points at.
type MediaType int

const (
	MediaTypeM3U8 MediaType = iota
	MediaTypeMP4
	MediaTypeMKV
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeMP4:
		return "mp4"
	case MediaTypeMKV:
		return "mkv"
	default:
		return "m3u8"
	}
}

// MediaTypeFromURL infers the media type from the URL path suffix,
// case-insensitively. Anything unrecognized is treated as an HLS playlist.
func MediaTypeFromURL(rawurl string) MediaType {
	p := rawurl
	if u, err := url.Parse(rawurl); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4":
		return MediaTypeMP4
	case ".mkv":
		return MediaTypeMKV
	default:
		return MediaTypeM3U8
	}
}

// ErrorCode classifies a download failure.
type ErrorCode string

const (
	// ErrNoMediaList means playlist resolution failed: recursion exhausted,
	// an empty variant set, or an unresolvable media playlist.
	ErrNoMediaList ErrorCode = "NO_MEDIA_LIST"
	// ErrUnexpected covers everything else: network, parse, I/O, bad status.
	ErrUnexpected ErrorCode = "UNEXPECTED_ERROR"
)

// DownloadError is the failure recorded on a FAILED download.
type DownloadError struct {
	Code    ErrorCode
	Message string
}

func (e *DownloadError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a DownloadError with a formatted technical message.
func NewError(code ErrorCode, format string, args ...any) *DownloadError {
	return &DownloadError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ByteRange is an inclusive HTTP byte range.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// SegmentInfo describes one fetchable piece of the final artifact.
type SegmentInfo struct {
	// Index orders segments within a download. For HLS it is
	// mediaSequence+i, for ranged files 0..N-1.
	Index int
	// URL is the absolute URL the segment is fetched from.
	URL string
	// Range is the byte range to request, nil when the whole resource is
	// fetched.
	Range *ByteRange
	// ByteSize is the expected size, -1 when unknown. It is replaced by the
	// actual written size once the segment is downloaded.
	ByteSize int64
	// TempFilePath is the absolute path of the on-disk part file.
	TempFilePath string
	// Downloaded flips to true exactly once, when the part file is complete.
	Downloaded bool
}

// DownloadState is an immutable snapshot of one download. The store publishes
// a fresh value on every mutation; holders must never modify it.
type DownloadState struct {
	ID              string
	URL             string
	OutputPath      string
	SegmentCacheDir string
	Segments        []SegmentInfo
	TotalSegments   int
	DownloadedBytes int64
	// Timestamp is the epoch-millis instant of the last status change.
	Timestamp int64
	Status    DownloadStatus
	MediaType MediaType
	Err       *DownloadError
}

// Clone deep-copies the state so a transform can mutate it safely.
func (s *DownloadState) Clone() *DownloadState {
	out := *s
	out.Segments = make([]SegmentInfo, len(s.Segments))
	copy(out.Segments, s.Segments)
	return &out
}

// DownloadedSegments counts segments whose part file is complete.
func (s *DownloadState) DownloadedSegments() int {
	n := 0
	for i := range s.Segments {
		if s.Segments[i].Downloaded {
			n++
		}
	}
	return n
}

// TotalBytes is the best known total size: the sum of non-negative segment
// sizes, never less than what has already been downloaded.
func (s *DownloadState) TotalBytes() int64 {
	var total int64
	for i := range s.Segments {
		if s.Segments[i].ByteSize > 0 {
			total += s.Segments[i].ByteSize
		}
	}
	if total < s.DownloadedBytes {
		return s.DownloadedBytes
	}
	return total
}

// NowMillis is the timestamp source for state changes.
func NowMillis() int64 { return time.Now().UnixMilli() }

// DownloadOptions configures a single download call.
type DownloadOptions struct {
	// Headers are sent with every HTTP request issued for this download.
	Headers map[string]string
	// MaxConcurrentSegments is the semaphore permit count for the fetcher.
	MaxConcurrentSegments int
}

// DefaultOptions returns the options used when none are supplied, and by
// resume (the original call's options are not persisted).
func DefaultOptions() DownloadOptions {
	return DownloadOptions{MaxConcurrentSegments: DefaultMaxConcurrentSegments}
}

// DownloadProgress is the point-in-time summary shipped to subscribers.
type DownloadProgress struct {
	ID                 string
	URL                string
	TotalSegments      int
	DownloadedSegments int
	DownloadedBytes    int64
	TotalBytes         int64
	Status             DownloadStatus
	Err                *DownloadError
}

// ProgressOf derives a progress snapshot from a state snapshot.
func ProgressOf(s *DownloadState) DownloadProgress {
	return DownloadProgress{
		ID:                 s.ID,
		URL:                s.URL,
		TotalSegments:      s.TotalSegments,
		DownloadedSegments: s.DownloadedSegments(),
		DownloadedBytes:    s.DownloadedBytes,
		TotalBytes:         s.TotalBytes(),
		Status:             s.Status,
		Err:                s.Err,
	}
}
