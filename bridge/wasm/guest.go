package wasm

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/joncooperworks/pluginstall/bridge"
)

// memory is the subset of api.Memory the ABI needs.
type memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// function is the subset of api.Function the ABI needs.
type function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

var errNoMemory = errors.New("WASM module has no memory")

// guest wraps the allocator exports and linear memory of one instantiated module.
type guest struct {
	mem          memory
	malloc       function
	free         function
	freeTakesLen bool

	// registered is the callback handle the guest was given, 0 until registration.
	registered atomic.Uint32
}

// alloc copies data into a fresh guest allocation. Empty data is passed as a null pointer.
func (g *guest) alloc(ctx context.Context, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}

	ptr, err := g.callMalloc(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if g.mem == nil {
		return 0, errNoMemory
	}
	if !g.mem.Write(ptr, data) {
		g.release(ctx, ptr, uint32(len(data)))
		return 0, fmt.Errorf("failed to write %d bytes to WASM memory at ptr=%d", len(data), ptr)
	}
	return ptr, nil
}

func (g *guest) callMalloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := g.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 {
		return 0, errors.New("malloc returned no result")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, errors.New("malloc returned null pointer")
	}
	return ptr, nil
}

func (g *guest) release(ctx context.Context, ptr, length uint32) {
	if ptr == 0 {
		return
	}

	params := []uint64{uint64(ptr)}
	if g.freeTakesLen {
		params = append(params, uint64(length))
	}

	_, _ = g.free.Call(ctx, params...)
}

// readCString copies the NUL-terminated string at ptr out of guest memory.
func (g *guest) readCString(ptr uint32) ([]byte, error) {
	if g.mem == nil {
		return nil, errNoMemory
	}
	size := g.mem.Size()
	if ptr >= size {
		return nil, fmt.Errorf("string pointer %d outside of %d byte memory", ptr, size)
	}

	window, ok := g.mem.Read(ptr, size-ptr)
	if !ok {
		return nil, fmt.Errorf("failed to read memory at ptr=%d", ptr)
	}
	end := bytes.IndexByte(window, 0)
	if end < 0 {
		return nil, fmt.Errorf("string at ptr=%d is not NUL-terminated", ptr)
	}
	return bytes.Clone(window[:end]), nil
}

// foreignString takes ownership of the guest string at ptr. A null pointer yields nil.
func (g *guest) foreignString(ctx context.Context, ptr uint32) (*bridge.ForeignBuffer, error) {
	if ptr == 0 {
		return nil, nil
	}

	data, err := g.readCString(ptr)
	if err != nil {
		g.release(ctx, ptr, 0)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	size := uint32(len(data)) + 1
	return bridge.NewForeignBuffer(data, func() {
		g.release(ctx, ptr, size)
	}), nil
}

// copyToCString implements the env.copy_to_c_string import. It converts count UTF-16 code units
// at ptr into a freshly allocated NUL-terminated narrow string and returns its address, or 0.
func (g *guest) copyToCString(ctx context.Context, handle, ptr, count uint32) uint32 {
	if handle == 0 || handle != g.registered.Load() {
		return 0
	}
	if g.mem == nil {
		return 0
	}

	wide, ok := g.mem.Read(ptr, count*2)
	if !ok {
		return 0
	}
	narrow, err := bridge.NarrowString(wide)
	if err != nil {
		return 0
	}

	out, err := g.alloc(ctx, append(narrow, 0))
	if err != nil {
		return 0
	}
	return out
}

// slots reserves n zeroed pointer-sized out slots in guest memory.
func (g *guest) slots(ctx context.Context, n int) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	return g.alloc(ctx, make([]byte, n*4))
}

// readSlot returns the pointer stored in out slot i.
func (g *guest) readSlot(base uint32, i int) (uint32, error) {
	raw, ok := g.mem.Read(base+uint32(i*4), 4)
	if !ok {
		return 0, fmt.Errorf("failed to read out slot %d at ptr=%d", i, base)
	}
	return binary.LittleEndian.Uint32(raw), nil
}
