// Package install manages versioned plugin install directories of the form
// <root>/<internal-name>/<version>.
package install

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joncooperworks/pluginstall/artifact"
)

// ErrInvalidName is returned for internal names or versions that cannot be used as a single
// path component.
var ErrInvalidName = errors.New("invalid path component")

// validComponent rejects values that would address anything other than a direct child directory.
func validComponent(kind, v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidName, kind)
	case v == "." || v == "..":
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, v)
	case strings.ContainsAny(v, `/\`):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidName, kind, v)
	case strings.IndexByte(v, 0) >= 0:
		return fmt.Errorf("%w: %s contains NUL", ErrInvalidName, kind)
	}
	return nil
}

// ValidateName checks a plugin internal name.
func ValidateName(name string) error {
	return validComponent("internal name", name)
}

// ValidateVersion checks a version string returned by the secondary runtime.
func ValidateVersion(version string) error {
	return validComponent("version", version)
}

// Dir returns the install directory for name at version under root.
func Dir(root, name, version string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := ValidateVersion(version); err != nil {
		return "", err
	}
	return filepath.Join(root, name, version), nil
}

// Prepare removes any existing contents of dir and recreates it empty.
// A missing dir is not an error.
func Prepare(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not remove previous install: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create install directory: %w", err)
	}
	return nil
}

// Finalize writes the completed manifest as <dir>/<name>.json, replacing the archived one.
func Finalize(dir, name, manifest string) error {
	path := filepath.Join(dir, artifact.ManifestName(name))
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("could not write manifest: %w", err)
	}
	return nil
}
