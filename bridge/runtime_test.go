package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtimeconfig.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDescriptor(t *testing.T) {
	path := writeDescriptor(t, `{
		"runtime": "wasm",
		"modules": {"heliosphere-installer": "installer.wasm"},
		"wasi": true
	}`)

	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "wasm", d.Runtime)
	assert.Equal(t, DefaultQualifier, d.Qualifier)
	assert.True(t, d.WASI)

	modPath, err := d.ModulePath("heliosphere-installer")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "installer.wasm"), modPath)

	_, err = d.ModulePath("other")
	assert.ErrorIs(t, err, ErrContract)
}

func TestLoadDescriptor_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad json":      `{`,
		"no runtime":    `{"modules": {"m": "m.wasm"}}`,
		"no modules":    `{"runtime": "wasm"}`,
		"bad qualifier": `{"runtime": "wasm", "qualifier": "NoModule", "modules": {"m": "m.wasm"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDescriptor(writeDescriptor(t, body))
			assert.Error(t, err)
		})
	}

	_, err := LoadDescriptor(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestInitialize(t *testing.T) {
	mock := NewMockRuntime()
	RegisterRuntime("initialize-test", func(ctx context.Context, d *Descriptor) (Runtime, error) {
		return mock, nil
	})

	path := writeDescriptor(t, `{"runtime": "initialize-test", "modules": {"heliosphere-installer": "x"}}`)
	b, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, DefaultQualifier, b.Qualifier())
	require.NoError(t, b.Close(context.Background()))
	assert.True(t, mock.Closed())
}

func TestInitialize_ContractMismatchClosesRuntime(t *testing.T) {
	mock := NewMockRuntime()
	mock.Missing[FuncIsPathValid] = true
	RegisterRuntime("initialize-mismatch-test", func(ctx context.Context, d *Descriptor) (Runtime, error) {
		return mock, nil
	})

	path := writeDescriptor(t, `{"runtime": "initialize-mismatch-test", "modules": {"heliosphere-installer": "x"}}`)
	_, err := Initialize(context.Background(), path)
	assert.ErrorIs(t, err, ErrContract)
	assert.True(t, mock.Closed())
}

func TestInitialize_UnknownBackend(t *testing.T) {
	path := writeDescriptor(t, `{"runtime": "no-such-backend", "modules": {"m": "x"}}`)
	_, err := Initialize(context.Background(), path)
	assert.Error(t, err)
}
