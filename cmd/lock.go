package cmd

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Curodenz/animeko/internal/config"
)

var appLock *flock.Flock

// AcquireLock takes the single-instance lock. It returns false when another
// instance already holds it.
func AcquireLock() (bool, error) {
	dir := config.GetAppDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	appLock = flock.New(filepath.Join(dir, "animeko-dl.lock"))
	return appLock.TryLock()
}

// ReleaseLock drops the single-instance lock.
func ReleaseLock() {
	if appLock != nil {
		appLock.Unlock()
		appLock = nil
	}
}
