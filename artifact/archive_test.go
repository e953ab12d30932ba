package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
	body string
	mode os.FileMode
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.mode != 0 {
			hdr.SetMode(e.mode)
		}
		fw, err := w.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpen_NotZip(t *testing.T) {
	_, err := Open([]byte("definitely not a zip"))
	assert.ErrorIs(t, err, ErrArchive)
}

func TestReadManifest(t *testing.T) {
	a, err := Open(buildZip(t,
		entry{name: "MyPlugin.json", body: `{"InternalName":"MyPlugin"}`},
		entry{name: "nested/Other.json", body: `{}`},
	))
	require.NoError(t, err)

	manifest, err := a.ReadManifest("MyPlugin")
	require.NoError(t, err)
	assert.Equal(t, `{"InternalName":"MyPlugin"}`, manifest)

	_, err = a.ReadManifest("Other")
	assert.ErrorIs(t, err, ErrManifestNotFound, "manifest must be at the archive root")
}

func TestReadManifest_InvalidUTF8(t *testing.T) {
	a, err := Open(buildZip(t, entry{name: "P.json", body: "\xff\xfe"}))
	require.NoError(t, err)

	_, err = a.ReadManifest("P")
	assert.ErrorIs(t, err, ErrArchive)
}

func TestExtractAll(t *testing.T) {
	a, err := Open(buildZip(t,
		entry{name: "MyPlugin.json", body: "{}"},
		entry{name: "MyPlugin.dll", body: "binary"},
		entry{name: "lib/"},
		entry{name: "lib/dep/Dep.dll", body: "dep"},
	))
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, a.ExtractAll(dest))

	data, err := os.ReadFile(filepath.Join(dest, "MyPlugin.dll"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "lib", "dep", "Dep.dll"))
	require.NoError(t, err)
	assert.Equal(t, "dep", string(data))

	info, err := os.Stat(filepath.Join(dest, "lib"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExtractAll_RejectsEscapes(t *testing.T) {
	tests := []entry{
		{name: "../evil.dll", body: "x"},
		{name: "lib/../../evil.dll", body: "x"},
		{name: "/abs/evil.dll", body: "x"},
		{name: "link", body: "/etc/passwd", mode: os.ModeSymlink | 0o777},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Open(buildZip(t, tt))
			require.NoError(t, err)

			root := t.TempDir()
			dest := filepath.Join(root, "install")
			require.NoError(t, os.Mkdir(dest, 0o755))

			err = a.ExtractAll(dest)
			assert.ErrorIs(t, err, ErrUnsafePath)

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "nothing may be written beside the destination")
		})
	}
}
