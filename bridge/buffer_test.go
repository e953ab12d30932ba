package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForeignBuffer_Take(t *testing.T) {
	released := 0
	buf := NewForeignBuffer([]byte("manifest"), func() { released++ })

	assert.Equal(t, 8, buf.Len())
	s, err := buf.Take()
	require.NoError(t, err)
	assert.Equal(t, "manifest", s)
	assert.Equal(t, 1, released)

	buf.Release()
	assert.Equal(t, 1, released, "release must run once")
}

func TestForeignBuffer_TakeInvalidUTF8Releases(t *testing.T) {
	released := 0
	buf := NewForeignBuffer([]byte{0xff, 0xfe}, func() { released++ })

	_, err := buf.Take()
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Equal(t, 1, released)
}

func TestForeignBuffer_Nil(t *testing.T) {
	var buf *ForeignBuffer

	assert.Equal(t, 0, buf.Len())
	_, err := buf.Take()
	assert.ErrorIs(t, err, ErrNullResult)
	assert.NotPanics(t, buf.Release)
}

func TestResult_Release(t *testing.T) {
	released := 0
	free := func() { released++ }
	res := &Result{
		Return:  NewForeignBuffer([]byte("a"), free),
		Outputs: []*ForeignBuffer{NewForeignBuffer([]byte("b"), free), nil},
	}

	res.Release()
	res.Release()
	assert.Equal(t, 2, released)

	var nilResult *Result
	assert.NotPanics(t, nilResult.Release)
}
