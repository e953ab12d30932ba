// Package extism hosts the installer guest as an Extism plugin using a framed ABI.
//
// Each contract function is an Extism export. String arguments arrive as length-prefixed frames
// in the plugin input and results leave as frames in the plugin output; a length of 0xFFFFFFFF
// marks a null result. Guest strings are produced by the env.copy_to_c_string host function.
package extism

import (
	"context"
	"fmt"
	"sync/atomic"

	extism "github.com/extism/go-sdk"

	"github.com/joncooperworks/pluginstall/bridge"
)

// Kind is the descriptor runtime value served by this package.
const Kind = "extism"

func init() {
	bridge.RegisterRuntime(Kind, func(ctx context.Context, d *bridge.Descriptor) (bridge.Runtime, error) {
		rt, err := NewRuntime(ctx, d)
		if err != nil {
			return nil, err
		}
		return rt, nil
	})
}

// plugin is the subset of *extism.Plugin the runtime calls.
type plugin interface {
	FunctionExists(name string) bool
	CallWithContext(ctx context.Context, name string, data []byte) (uint32, []byte, error)
	Close(ctx context.Context) error
}

// Runtime is an Extism plugin instance of the installer guest.
type Runtime struct {
	plugin     plugin
	registered *atomic.Bool
}

// NewRuntime loads the guest module named by the descriptor's qualifier as an Extism plugin.
func NewRuntime(ctx context.Context, d *bridge.Descriptor) (*Runtime, error) {
	q, err := bridge.ParseQualifier(d.Qualifier)
	if err != nil {
		return nil, err
	}
	path, err := d.ModulePath(q.Module)
	if err != nil {
		return nil, err
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmFile{Path: path, Name: q.Module},
		},
		Config: d.Config,
	}
	config := extism.PluginConfig{
		EnableWasi: d.WASI,
	}

	registered := &atomic.Bool{}
	p, err := extism.NewPlugin(ctx, manifest, config, []extism.HostFunction{
		newCopyToCStringFunction(registered),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Extism plugin: %w", err)
	}

	return &Runtime{plugin: extismPlugin{p}, registered: registered}, nil
}

// extismPlugin adapts *extism.Plugin, whose context-aware close is CloseWithContext, to plugin.
type extismPlugin struct {
	*extism.Plugin
}

func (p extismPlugin) Close(ctx context.Context) error {
	return p.Plugin.CloseWithContext(ctx)
}

// Resolve checks that sig is exported. Extism exports take no wasm parameters, so only presence
// can be verified up front.
func (r *Runtime) Resolve(sig bridge.Signature) (bridge.Delegate, error) {
	if !r.plugin.FunctionExists(sig.Name) {
		return nil, fmt.Errorf("%w: %s is not exported", bridge.ErrContract, sig)
	}
	return &delegate{runtime: r, sig: sig}, nil
}

// Close shuts down the plugin instance.
func (r *Runtime) Close(ctx context.Context) error {
	return r.plugin.Close(ctx)
}

// newCopyToCStringFunction converts a UTF-16LE memory block into a new narrow block.
// WASM signature: (param i64) (result i64) - wide block offset -> narrow block offset, 0 on failure
func newCopyToCStringFunction(registered *atomic.Bool) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		bridge.CallbackName,
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			if !registered.Load() {
				stack[0] = 0
				p.Log(extism.LogLevelWarn, "copy_to_c_string: called before registration")
				return
			}

			wide, err := p.ReadBytes(stack[0])
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("copy_to_c_string: failed to read string: %v", err))
				return
			}

			narrow, err := bridge.NarrowString(wide)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("copy_to_c_string: %v", err))
				return
			}

			offset, err := p.WriteBytes(narrow)
			if err != nil {
				stack[0] = 0
				p.Log(extism.LogLevelError, fmt.Sprintf("copy_to_c_string: failed to write string to plugin memory: %v", err))
				return
			}
			stack[0] = offset
		},
		[]extism.ValueType{extism.ValueTypeI64}, // wide_offset: i64
		[]extism.ValueType{extism.ValueTypeI64}, // narrow_offset: i64
	)
	fn.SetNamespace("env")
	return fn
}
