package wasm

import (
	"context"
	"fmt"

	"github.com/joncooperworks/pluginstall/bridge"
)

// delegate calls one export using the raw pointer ABI.
type delegate struct {
	guest  *guest
	fn     function
	sig    bridge.Signature
	handle uint32
}

func (d *delegate) Invoke(ctx context.Context, args []string) (*bridge.Result, error) {
	if len(args) != d.sig.Strings {
		return nil, fmt.Errorf("%w: %s takes %d strings, got %d", bridge.ErrContract, d.sig.Name, d.sig.Strings, len(args))
	}
	g := d.guest

	params := make([]uint64, 0, d.sig.Params())
	for _, arg := range args {
		ptr, err := g.alloc(ctx, []byte(arg))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate argument: %w", err)
		}
		defer g.release(ctx, ptr, uint32(len(arg)))
		params = append(params, uint64(ptr), uint64(len(arg)))
	}

	slots, err := g.slots(ctx, d.sig.Outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate out slots: %w", err)
	}
	defer g.release(ctx, slots, uint32(d.sig.Outputs*4))
	for i := 0; i < d.sig.Outputs; i++ {
		params = append(params, uint64(slots+uint32(i*4)))
	}

	if d.sig.Callback {
		params = append(params, uint64(d.handle))
	}

	results, err := d.fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", d.sig.Name, err)
	}

	if d.sig.Callback {
		g.registered.Store(d.handle)
	}

	res := &bridge.Result{}
	switch d.sig.Returns {
	case bridge.ReturnString:
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: %s returned no result", bridge.ErrContract, d.sig.Name)
		}
		res.Return, err = g.foreignString(ctx, uint32(results[0]))
		if err != nil {
			return nil, err
		}
	case bridge.ReturnByte:
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: %s returned no result", bridge.ErrContract, d.sig.Name)
		}
		res.Byte = byte(results[0])
	}

	if d.sig.Outputs > 0 {
		res.Outputs = make([]*bridge.ForeignBuffer, d.sig.Outputs)
		for i := range res.Outputs {
			ptr, err := g.readSlot(slots, i)
			if err == nil {
				res.Outputs[i], err = g.foreignString(ctx, ptr)
			}
			if err != nil {
				res.Release()
				return nil, fmt.Errorf("out slot %d: %w", i, err)
			}
		}
	}

	return res, nil
}
