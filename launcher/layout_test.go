package launcher

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Paths(t *testing.T) {
	l := Layout{Root: "/cfg/XIVLauncher"}
	assert.Equal(t, filepath.Join("/cfg/XIVLauncher", "dalamudConfig.json"), l.ConfigPath())
	assert.Equal(t, filepath.Join("/cfg/XIVLauncher", "pluginConfigs", "MyPlugin.json"), l.PluginConfigPath("MyPlugin"))
	assert.Equal(t, filepath.Join("/cfg/XIVLauncher", "installedPlugins"), l.InstallRoot())
}

func TestLayout_Config(t *testing.T) {
	l := Layout{Root: filepath.Join(t.TempDir(), DirName)}

	assert.False(t, l.ConfigPresent())
	_, ok, err := l.ReadConfig()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.WriteConfig(`{"a":1}`))
	assert.True(t, l.ConfigPresent())

	data, ok, err := l.ReadConfig()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, data)
}

func TestLayout_PluginConfig(t *testing.T) {
	l := Layout{Root: t.TempDir()}

	_, err := l.ReadPluginConfig("MyPlugin")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, l.WritePluginConfig("MyPlugin", "{}"))
	data, err := l.ReadPluginConfig("MyPlugin")
	require.NoError(t, err)
	assert.Equal(t, "{}", data)

	assert.Error(t, l.WritePluginConfig("../escape", "{}"))
}

func TestDefaultRoot(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	t.Setenv("AppData", "/tmp/appdata")

	root, err := DefaultRoot()
	require.NoError(t, err)
	assert.Equal(t, DirName, filepath.Base(root))
}
