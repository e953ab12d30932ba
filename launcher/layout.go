// Package launcher locates the launcher's configuration root and reads and writes the JSON blobs
// stored there. Blob contents are opaque.
package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joncooperworks/pluginstall/install"
)

// DirName is the launcher's directory under the user configuration directory.
const DirName = "XIVLauncher"

// ErrNoConfigRoot is returned when the platform has no user configuration directory.
var ErrNoConfigRoot = errors.New("could not determine launcher config directory")

// Layout resolves paths under a launcher configuration root.
type Layout struct {
	Root string
}

// DefaultRoot returns <user config dir>/XIVLauncher.
func DefaultRoot() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoConfigRoot, err)
	}
	return filepath.Join(dir, DirName), nil
}

// DefaultLayout returns the layout rooted at DefaultRoot.
func DefaultLayout() (Layout, error) {
	root, err := DefaultRoot()
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: root}, nil
}

func (l Layout) ConfigPath() string {
	return filepath.Join(l.Root, "dalamudConfig.json")
}

func (l Layout) PluginConfigPath(name string) string {
	return filepath.Join(l.Root, "pluginConfigs", name+".json")
}

func (l Layout) InstallRoot() string {
	return filepath.Join(l.Root, "installedPlugins")
}

// ConfigPresent reports whether the launcher config file exists.
func (l Layout) ConfigPresent() bool {
	_, err := os.Stat(l.ConfigPath())
	return err == nil
}

// ReadConfig returns the launcher config, or ok=false when it does not exist.
func (l Layout) ReadConfig() (data string, ok bool, err error) {
	b, err := os.ReadFile(l.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("could not read launcher config: %w", err)
	}
	return string(b), true, nil
}

// WriteConfig replaces the launcher config.
func (l Layout) WriteConfig(data string) error {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return fmt.Errorf("could not create launcher config directory: %w", err)
	}
	if err := os.WriteFile(l.ConfigPath(), []byte(data), 0o644); err != nil {
		return fmt.Errorf("could not write launcher config: %w", err)
	}
	return nil
}

// ReadPluginConfig returns the config blob for plugin name.
func (l Layout) ReadPluginConfig(name string) (string, error) {
	if err := install.ValidateName(name); err != nil {
		return "", err
	}
	b, err := os.ReadFile(l.PluginConfigPath(name))
	if err != nil {
		return "", fmt.Errorf("could not read plugin config: %w", err)
	}
	return string(b), nil
}

// WritePluginConfig replaces the config blob for plugin name, creating its directory.
func (l Layout) WritePluginConfig(name, data string) error {
	if err := install.ValidateName(name); err != nil {
		return err
	}
	path := l.PluginConfigPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create plugin config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("could not write plugin config: %w", err)
	}
	return nil
}
