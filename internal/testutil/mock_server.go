// Package testutil provides HTTP test servers for download engine testing.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer is a configurable HTTP test server serving a single file, with
// optional Range support, latency and failure injection.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize         int64         // Size of the served file
	SupportsRanges   bool          // Whether to honor HTTP Range requests
	ContentType      string        // Content-Type header value
	RandomData       bool          // If true, serve random data; otherwise zeros
	Latency          time.Duration // Artificial latency per request
	FailOnNthRequest int           // Fail on Nth request (0 = don't fail)
	OmitContentLen   bool          // Suppress Content-Length on 200 responses

	// Tracking
	RequestCount   atomic.Int64
	BytesServed    atomic.Int64
	ActiveRequests atomic.Int64
	PeakConcurrent atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
	requestCountMu sync.Mutex
	internalReqNum int

	data          []byte
	CustomHandler http.HandlerFunc
}

// MockServerOption configures a MockServer.
type MockServerOption func(*MockServer)

// WithHandler sets a custom request handler, bypassing the file logic.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) { m.CustomHandler = h }
}

// WithFileSize sets the file size to serve.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) { m.FileSize = size }
}

// WithRangeSupport enables or disables Range request support. A server
// without it answers every request with 200 and the full body.
func WithRangeSupport(enabled bool) MockServerOption {
	return func(m *MockServer) { m.SupportsRanges = enabled }
}

// WithRandomData serves random bytes instead of zeros so content can be
// verified end to end.
func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) { m.RandomData = random }
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) { m.Latency = d }
}

// WithFailOnNthRequest makes the Nth request return 500.
func WithFailOnNthRequest(n int) MockServerOption {
	return func(m *MockServer) { m.FailOnNthRequest = n }
}

// WithoutContentLength suppresses the Content-Length header on full
// responses, simulating chunked servers of unknown size.
func WithoutContentLength() MockServerOption {
	return func(m *MockServer) { m.OmitContentLen = true }
}

// NewMockServerT creates a mock server and skips the test if binding fails.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := &MockServer{
		FileSize:       1024 * 1024,
		SupportsRanges: true,
		ContentType:    "application/octet-stream",
	}
	for _, opt := range opts {
		opt(m)
	}

	m.data = make([]byte, m.FileSize)
	if m.RandomData {
		_, _ = rand.Read(m.data)
	}

	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handleRequest))
	return m
}

// URL returns the server's URL.
func (m *MockServer) URL() string { return m.Server.URL }

// FileURL returns the server URL with the given path appended, so media type
// inference sees a suffix.
func (m *MockServer) FileURL(path string) string {
	return m.Server.URL + "/" + strings.TrimPrefix(path, "/")
}

// Data returns the exact bytes the server serves.
func (m *MockServer) Data() []byte { return m.data }

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.Close()
	}
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}

	m.RequestCount.Add(1)
	active := m.ActiveRequests.Add(1)
	defer m.ActiveRequests.Add(-1)
	for {
		peak := m.PeakConcurrent.Load()
		if active <= peak || m.PeakConcurrent.CompareAndSwap(peak, active) {
			break
		}
	}

	m.requestCountMu.Lock()
	m.internalReqNum++
	reqNum := m.internalReqNum
	m.requestCountMu.Unlock()

	if m.FailOnNthRequest > 0 && reqNum == m.FailOnNthRequest {
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}

	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	rangeHeader := r.Header.Get("Range")
	start := int64(0)
	end := m.FileSize - 1

	if rangeHeader != "" && m.SupportsRanges {
		m.RangeRequests.Add(1)
		var err error
		start, end, err = parseRange(rangeHeader, m.FileSize)
		if err != nil {
			http.Error(w, "Invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Type", m.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, m.FileSize))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		m.FullRequests.Add(1)
		w.Header().Set("Content-Type", m.ContentType)
		if !m.OmitContentLen {
			w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
		}
		if m.SupportsRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
		if m.OmitContentLen {
			// Force chunked encoding so the client sees no Content-Length.
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}

	n, _ := w.Write(m.data[start : end+1])
	m.BytesServed.Add(int64(n))
}

// parseRange parses an HTTP Range header and returns start, end positions.
// Handles formats like "bytes=0-499" or "bytes=500-".
func parseRange(rangeHeader string, fileSize int64) (int64, int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return 0, 0, fmt.Errorf("invalid range prefix")
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(rangeSpec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format")
	}

	var start, end int64
	var err error

	if parts[0] == "" {
		// Suffix range: -500 means last 500 bytes
		end = fileSize - 1
		start, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		start = fileSize - start
	} else {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if parts[1] == "" {
			end = fileSize - 1
		} else {
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return 0, 0, err
			}
		}
	}

	if start < 0 || end >= fileSize || start > end {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	return start, end, nil
}
