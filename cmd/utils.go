package cmd

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// readURLsFromFile reads URLs from a file, one per line. Blank lines and
// lines starting with # are skipped.
func readURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for long URLs (default is 64KB, increase to 1MB)
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return urls, nil
}

// parseHeaderFlags converts repeated "Name: value" flags into a header map.
func parseHeaderFlags(flags []string) map[string]string {
	if len(flags) == 0 {
		return nil
	}
	headers := make(map[string]string, len(flags))
	for _, flag := range flags {
		name, value, found := strings.Cut(flag, ":")
		if !found {
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers
}

// outputPathFor derives a destination file path in dir from a URL, falling
// back to a generic name when the URL path has none.
func outputPathFor(dir, rawurl string) string {
	name := "download.bin"
	if u, err := url.Parse(rawurl); err == nil {
		base := path.Base(u.Path)
		if base != "" && base != "." && base != "/" {
			name = base
		}
	}
	// HLS playlists merge into a transport stream, not a playlist file.
	if strings.HasSuffix(strings.ToLower(name), ".m3u8") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".ts"
	}
	return filepath.Join(dir, name)
}
