package types

import "time"

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
)

// Segment planning constants for ranged downloads
const (
	// SegmentSize is the fixed size of a ranged segment; the last segment
	// carries the remainder. Files at or below this size stay whole.
	SegmentSize = 5 * MB
)

// Playlist resolution
const (
	// MaxPlaylistDepth bounds master-playlist recursion.
	MaxPlaylistDepth = 5
)

// I/O
const (
	// CopyBuffer is the fixed buffer used for segment streaming and merge.
	// No code path materializes a whole segment in memory.
	CopyBuffer = 64 * KB
)

// Concurrency
const (
	DefaultMaxConcurrentSegments = 3
)

// Progress bus
const (
	// ProgressBuffer is the per-subscriber channel capacity. On overflow the
	// oldest buffered snapshot is dropped, never the publisher blocked.
	ProgressBuffer = 64
)

// HTTP client tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
)
