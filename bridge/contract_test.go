package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQualifier(t *testing.T) {
	q, err := ParseQualifier(DefaultQualifier)
	require.NoError(t, err)
	assert.Equal(t, "HeliosphereInstaller.Installer", q.TypeName)
	assert.Equal(t, "heliosphere-installer", q.Module)

	for _, bad := range []string{"", "NoModule", ", module", "Type, ", ","} {
		_, err := ParseQualifier(bad)
		assert.ErrorIs(t, err, ErrContract, "qualifier %q", bad)
	}
}

func TestContract(t *testing.T) {
	sigs := Contract("")
	require.Len(t, sigs, 5)

	params := map[string]int{}
	for _, sig := range sigs {
		assert.Equal(t, DefaultQualifier, sig.Qualifier)
		params[sig.Name] = sig.Params()
	}

	assert.Equal(t, map[string]int{
		FuncSetCallback:     1,
		FuncMakePlugin:      4,
		FuncMakeRepo:        2,
		FuncFillOutManifest: 8,
		FuncIsPathValid:     2,
	}, params)
}

func TestReturnKind_String(t *testing.T) {
	assert.Equal(t, "string", ReturnString.String())
	assert.Equal(t, "ReturnKind(42)", ReturnKind(42).String())
}
