package extism

import (
	"context"
	"fmt"

	"github.com/joncooperworks/pluginstall/bridge"
)

type delegate struct {
	runtime *Runtime
	sig     bridge.Signature
}

func (d *delegate) Invoke(ctx context.Context, args []string) (*bridge.Result, error) {
	if len(args) != d.sig.Strings {
		return nil, fmt.Errorf("%w: %s takes %d strings, got %d", bridge.ErrContract, d.sig.Name, d.sig.Strings, len(args))
	}

	input := EncodeFrames(args...)
	if d.sig.Callback {
		input = EncodeFrames(bridge.CallbackName)
	}

	exitCode, output, err := d.runtime.plugin.CallWithContext(ctx, d.sig.Name, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", d.sig.Name, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%s returned non-zero exit code: %d", d.sig.Name, exitCode)
	}

	if d.sig.Callback {
		d.runtime.registered.Store(true)
	}

	res := &bridge.Result{}
	switch d.sig.Returns {
	case bridge.ReturnString:
		frames, err := DecodeFrames(output, 1)
		if err != nil {
			return nil, fmt.Errorf("%w: %s output: %w", bridge.ErrContract, d.sig.Name, err)
		}
		res.Return = buffer(frames[0])
		return res, nil

	case bridge.ReturnByte:
		if len(output) != 1 {
			return nil, fmt.Errorf("%w: %s must output a single byte, got %d", bridge.ErrContract, d.sig.Name, len(output))
		}
		res.Byte = output[0]
		return res, nil
	}

	if d.sig.Outputs > 0 {
		frames, err := DecodeFrames(output, d.sig.Outputs)
		if err != nil {
			return nil, fmt.Errorf("%w: %s output: %w", bridge.ErrContract, d.sig.Name, err)
		}
		res.Outputs = make([]*bridge.ForeignBuffer, len(frames))
		for i, f := range frames {
			res.Outputs[i] = buffer(f)
		}
	}
	return res, nil
}

// buffer wraps an output frame. The Extism output is already copied to the host, so there is no
// guest allocation to release.
func buffer(frame []byte) *bridge.ForeignBuffer {
	if frame == nil {
		return nil
	}
	return bridge.NewForeignBuffer(frame, nil)
}
