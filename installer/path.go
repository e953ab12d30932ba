package installer

import (
	"context"
	"os"
	"unicode/utf8"
)

// CheckPathValidity reports whether path can be used as a plugin location. When create is set
// the directory is created first. The path must be an existing, writable directory with a UTF-8
// name before the secondary runtime is asked. Only a runtime failure is returned as an error.
func (i *Installer) CheckPathValidity(ctx context.Context, path string, create bool) (bool, error) {
	if create {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return false, nil
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	if !info.IsDir() {
		return false, nil
	}
	if info.Mode().Perm()&0o222 == 0 {
		return false, nil
	}
	if !utf8.ValidString(path) {
		return false, nil
	}

	return i.runtime.IsPathValid(ctx, path)
}
