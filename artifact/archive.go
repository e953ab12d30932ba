package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
)

var (
	// ErrArchive is returned when the downloaded bytes are not a readable zip archive.
	ErrArchive = errors.New("could not process zip archive")
	// ErrManifestNotFound is returned when the archive has no <internal-name>.json entry.
	ErrManifestNotFound = errors.New("could not get manifest")
	// ErrUnsafePath is returned for entries that would land outside the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// Archive is an in-memory plugin zip.
type Archive struct {
	reader *zip.Reader
	size   int
}

// Open parses data as a zip archive.
func Open(data []byte) (*Archive, error) {
	// A reader returned alongside an error means the directory parsed but names an insecure
	// path; ExtractAll rejects those entries itself.
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if r == nil {
		return nil, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	return &Archive{reader: r, size: len(data)}, nil
}

// Size returns the archive size in bytes.
func (a *Archive) Size() int {
	return a.size
}

// ManifestName is the root entry holding a plugin's manifest.
func ManifestName(internalName string) string {
	return internalName + ".json"
}

// ReadManifest returns the contents of the root <internal-name>.json entry.
func (a *Archive) ReadManifest(internalName string) (string, error) {
	name := ManifestName(internalName)
	for _, f := range a.reader.File {
		if f.Name != name {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: could not extract manifest: %w", ErrArchive, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("%w: could not extract manifest: %w", ErrArchive, err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: manifest %s is not valid UTF-8", ErrArchive, name)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: %s", ErrManifestNotFound, name)
}

// ExtractAll writes every entry under dest, which must already exist.
// Directory structure is preserved. Absolute paths, entries that climb out of dest and symbolic
// links are rejected with ErrUnsafePath.
func (a *Archive) ExtractAll(dest string) error {
	for _, f := range a.reader.File {
		if err := extractFile(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	name := filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))
	if name == "" {
		return nil
	}
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	target := filepath.Join(dest, name)

	mode := f.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("%w: symbolic link %s", ErrUnsafePath, f.Name)
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: could not extract zip: %w", ErrArchive, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: could not extract zip: %w", ErrArchive, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
