package types

import (
	"testing"
)

func TestMediaTypeFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want MediaType
	}{
		{"https://host/video.mp4", MediaTypeMP4},
		{"https://host/video.MP4", MediaTypeMP4},
		{"https://host/video.mkv", MediaTypeMKV},
		{"https://host/path/index.m3u8", MediaTypeM3U8},
		{"https://host/video.mp4?token=abc", MediaTypeMP4},
		{"https://host/stream", MediaTypeM3U8},
		{"https://host/video.webm", MediaTypeM3U8},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := MediaTypeFromURL(tt.url); got != tt.want {
				t.Errorf("MediaTypeFromURL(%s) = %s, want %s", tt.url, got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []DownloadStatus{StatusCompleted, StatusFailed, StatusCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []DownloadStatus{StatusInitializing, StatusDownloading, StatusPaused, StatusMerging}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &DownloadState{
		ID:       "a",
		Segments: []SegmentInfo{{Index: 0}, {Index: 1}},
	}
	clone := orig.Clone()
	clone.Segments[0].Downloaded = true
	clone.Status = StatusCompleted

	if orig.Segments[0].Downloaded {
		t.Error("clone mutation leaked into the original's segments")
	}
	if orig.Status == StatusCompleted {
		t.Error("clone mutation leaked into the original's status")
	}
}

func TestTotalBytes(t *testing.T) {
	st := &DownloadState{
		Segments: []SegmentInfo{
			{ByteSize: 100},
			{ByteSize: -1}, // unknown sizes don't count
			{ByteSize: 50},
		},
		DownloadedBytes: 30,
	}
	if got := st.TotalBytes(); got != 150 {
		t.Errorf("TotalBytes() = %d, want 150", got)
	}

	// Never report less than what is already on disk.
	st.DownloadedBytes = 500
	if got := st.TotalBytes(); got != 500 {
		t.Errorf("TotalBytes() = %d, want 500", got)
	}
}

func TestProgressOf(t *testing.T) {
	st := &DownloadState{
		ID:  "a",
		URL: "https://host/v.m3u8",
		Segments: []SegmentInfo{
			{Index: 0, Downloaded: true, ByteSize: 10},
			{Index: 1, ByteSize: -1},
		},
		TotalSegments:   2,
		DownloadedBytes: 10,
		Status:          StatusDownloading,
	}
	p := ProgressOf(st)
	if p.DownloadedSegments != 1 || p.TotalSegments != 2 {
		t.Errorf("segment counts = %d/%d, want 1/2", p.DownloadedSegments, p.TotalSegments)
	}
	if p.TotalBytes != 10 || p.DownloadedBytes != 10 {
		t.Errorf("bytes = %d/%d, want 10/10", p.DownloadedBytes, p.TotalBytes)
	}
}

func TestByteRange(t *testing.T) {
	r := ByteRange{Start: 0, End: 5242879}
	if r.Length() != 5242880 {
		t.Errorf("Length() = %d, want 5242880", r.Length())
	}
	if r.Header() != "bytes=0-5242879" {
		t.Errorf("Header() = %s", r.Header())
	}
}

func TestDownloadErrorMessage(t *testing.T) {
	e := NewError(ErrNoMediaList, "depth %d exceeded", 5)
	if e.Code != ErrNoMediaList {
		t.Errorf("Code = %s", e.Code)
	}
	if e.Error() != "NO_MEDIA_LIST: depth 5 exceeded" {
		t.Errorf("Error() = %s", e.Error())
	}
	bare := &DownloadError{Code: ErrUnexpected}
	if bare.Error() != "UNEXPECTED_ERROR" {
		t.Errorf("Error() = %s", bare.Error())
	}
}
