package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joncooperworks/pluginstall/bridge"
)

func TestCheckPathValidity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := t.TempDir()

	ok, err := h.inst.CheckPathValidity(ctx, base, false)
	require.NoError(t, err)
	assert.True(t, ok)

	created := filepath.Join(base, "new", "dir")
	ok, err = h.inst.CheckPathValidity(ctx, created, true)
	require.NoError(t, err)
	assert.True(t, ok)
	info, err := os.Stat(created)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Equal(t, 2, h.mock.Calls(bridge.FuncIsPathValid))
}

func TestCheckPathValidity_LocalFailuresSkipRuntime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := t.TempDir()

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	readOnly := filepath.Join(base, "readonly")
	require.NoError(t, os.Mkdir(readOnly, 0o555))
	t.Cleanup(func() { _ = os.Chmod(readOnly, 0o755) })

	tests := map[string]struct {
		path   string
		create bool
	}{
		"missing":          {path: filepath.Join(base, "missing")},
		"not a directory":  {path: file},
		"read-only":        {path: readOnly},
		"cannot create":    {path: filepath.Join(file, "child"), create: true},
		"invalid encoding": {path: filepath.Join(base, "bad\xff"), create: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ok, err := h.inst.CheckPathValidity(ctx, tt.path, tt.create)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	assert.Zero(t, h.mock.Calls(bridge.FuncIsPathValid))
}

func TestCheckPathValidity_RuntimeRejects(t *testing.T) {
	h := newHarness(t, func(m *bridge.MockRuntime) {
		m.PathValid = func(string) bool { return false }
	})

	ok, err := h.inst.CheckPathValidity(context.Background(), t.TempDir(), false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, h.mock.Calls(bridge.FuncIsPathValid))
}
