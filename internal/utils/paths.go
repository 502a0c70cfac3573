package utils

import (
	"os"
	"path/filepath"
)

// EnsureAbsPath resolves path against the current working directory so
// downloads keep working after the process changes directory.
func EnsureAbsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(wd, path)
}
