package bridge

import (
	"fmt"
	"sync"
	"unicode/utf8"
)

// ForeignBuffer is a string buffer allocated by the secondary runtime and handed to the host.
//
// The host owns it from the moment it is received, but the memory must be returned through the
// allocating side's own deallocation routine, which is what release runs. It is never freed with
// the host allocator. A null foreign pointer is represented by a nil *ForeignBuffer.
type ForeignBuffer struct {
	data    []byte
	release func()
	once    sync.Once
}

// NewForeignBuffer wraps data that lives in guest memory. release is the guest-side free for the
// allocation and may be nil when the guest reclaims the memory itself.
func NewForeignBuffer(data []byte, release func()) *ForeignBuffer {
	return &ForeignBuffer{data: data, release: release}
}

// Len returns the length of the buffer in bytes.
func (b *ForeignBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Take copies the buffer into a native string and releases the foreign allocation.
// The buffer is released even when it does not hold valid UTF-8.
func (b *ForeignBuffer) Take() (string, error) {
	if b == nil {
		return "", ErrNullResult
	}
	defer b.Release()

	if !utf8.Valid(b.data) {
		return "", fmt.Errorf("%w: %d byte buffer", ErrInvalidEncoding, len(b.data))
	}
	return string(b.data), nil
}

// Release returns the allocation to the guest. It is safe to call more than once and on nil.
func (b *ForeignBuffer) Release() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		b.data = nil
		if b.release != nil {
			b.release()
		}
	})
}

// Result is everything a single delegate invocation handed back to the host.
type Result struct {
	// Return is the direct string return, nil when null or when the function returns no string.
	Return *ForeignBuffer
	// Byte is the direct byte return for ReturnByte functions.
	Byte byte
	// Outputs holds one entry per out slot, in declaration order; nil entries were left null.
	Outputs []*ForeignBuffer
}

// Release frees every buffer the result still owns.
func (r *Result) Release() {
	if r == nil {
		return
	}
	r.Return.Release()
	for _, out := range r.Outputs {
		out.Release()
	}
}
