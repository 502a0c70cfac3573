package testutil

import (
	"fmt"
	"os"
)

// VerifyFileSize checks that path exists with exactly the expected size.
func VerifyFileSize(path string, expected int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() != expected {
		return fmt.Errorf("%s is %d bytes, want %d", path, info.Size(), expected)
	}
	return nil
}

// VerifyFileContent checks that path holds exactly the expected bytes.
func VerifyFileContent(path string, expected []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(got) != len(expected) {
		return fmt.Errorf("%s is %d bytes, want %d", path, len(got), len(expected))
	}
	for i := range got {
		if got[i] != expected[i] {
			return fmt.Errorf("%s differs at byte %d", path, i)
		}
	}
	return nil
}
