// Package history is the sqlite archive of finished downloads. It records
// terminal states only; the engine's in-memory store stays the source of
// truth for live downloads.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/h2non/filetype"
	_ "modernc.org/sqlite"

	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/utils"
)

var (
	mu sync.Mutex
	db *sql.DB
)

// ErrNotConfigured is returned when the archive is used before Configure.
var ErrNotConfigured = errors.New("history database not configured")

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL,
	output_path      TEXT NOT NULL,
	media_type       TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_bytes      INTEGER NOT NULL,
	downloaded_bytes INTEGER NOT NULL,
	error_code       TEXT,
	mime             TEXT,
	finished_at      INTEGER NOT NULL
);`

// Entry is one archived download.
type Entry struct {
	ID              string
	URL             string
	OutputPath      string
	MediaType       string
	Status          string
	TotalBytes      int64
	DownloadedBytes int64
	ErrorCode       string
	MIME            string
	FinishedAt      int64
}

// Configure opens (or creates) the archive at dbPath.
func Configure(dbPath string) error {
	mu.Lock()
	defer mu.Unlock()
	if db != nil {
		db.Close()
		db = nil
	}

	handle, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	if _, err := handle.Exec(schema); err != nil {
		handle.Close()
		return fmt.Errorf("init history schema: %w", err)
	}
	db = handle
	return nil
}

// CloseDB closes the archive. Safe to call when not configured.
func CloseDB() {
	mu.Lock()
	defer mu.Unlock()
	if db != nil {
		db.Close()
		db = nil
	}
}

// Record upserts the terminal state of a download. Non-terminal states are
// ignored. For completed downloads the merged output is sniffed for its
// container type.
func Record(st types.DownloadState) error {
	if !st.Status.Terminal() {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return ErrNotConfigured
	}

	errorCode := ""
	if st.Err != nil {
		errorCode = string(st.Err.Code)
	}

	mime := ""
	if st.Status == types.StatusCompleted {
		mime = sniffMIME(st.OutputPath)
	}

	_, err := db.Exec(`
		INSERT INTO downloads
			(id, url, output_path, media_type, status, total_bytes, downloaded_bytes, error_code, mime, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_bytes = excluded.total_bytes,
			downloaded_bytes = excluded.downloaded_bytes,
			error_code = excluded.error_code,
			mime = excluded.mime,
			finished_at = excluded.finished_at`,
		st.ID, st.URL, st.OutputPath, st.MediaType.String(), st.Status.String(),
		st.TotalBytes(), st.DownloadedBytes, errorCode, mime, time.Now().UnixMilli())
	return err
}

// sniffMIME reads the output file head and matches it against known
// container signatures. Unknown or unreadable files yield "".
func sniffMIME(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	// 261 bytes cover every signature filetype knows.
	head := make([]byte, 261)
	n, _ := f.Read(head)
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	utils.Debug("Sniffed %s as %s", path, kind.MIME.Value)
	return kind.MIME.Value
}

// Get returns one archived download by id.
func Get(id string) (*Entry, error) {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return nil, ErrNotConfigured
	}

	row := db.QueryRow(`
		SELECT id, url, output_path, media_type, status, total_bytes, downloaded_bytes, error_code, mime, finished_at
		FROM downloads WHERE id = ?`, id)

	var e Entry
	err := row.Scan(&e.ID, &e.URL, &e.OutputPath, &e.MediaType, &e.Status,
		&e.TotalBytes, &e.DownloadedBytes, &e.ErrorCode, &e.MIME, &e.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns every archived download, most recent first.
func List() ([]Entry, error) {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := db.Query(`
		SELECT id, url, output_path, media_type, status, total_bytes, downloaded_bytes, error_code, mime, finished_at
		FROM downloads ORDER BY finished_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.URL, &e.OutputPath, &e.MediaType, &e.Status,
			&e.TotalBytes, &e.DownloadedBytes, &e.ErrorCode, &e.MIME, &e.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Remove deletes one archived download.
func Remove(id string) error {
	mu.Lock()
	defer mu.Unlock()
	if db == nil {
		return ErrNotConfigured
	}
	_, err := db.Exec(`DELETE FROM downloads WHERE id = ?`, id)
	return err
}
