// Package wasm hosts the installer guest on wazero using the raw pointer ABI.
//
// Strings cross as (ptr, len) pairs in guest linear memory. Strings produced by the guest are
// NUL-terminated allocations the host frees through the guest's own free export. The guest
// creates them by calling the env.copy_to_c_string import with the handle it was registered with.
package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/joncooperworks/pluginstall/bridge"
)

// Kind is the descriptor runtime value served by this package.
const Kind = "wasm"

// callbackHandle is the handle passed to SetCopyToCStringFunctionPtr. 0 is reserved for null.
const callbackHandle uint32 = 1

func init() {
	bridge.RegisterRuntime(Kind, func(ctx context.Context, d *bridge.Descriptor) (bridge.Runtime, error) {
		rt, err := NewRuntime(ctx, d)
		if err != nil {
			return nil, err
		}
		return rt, nil
	})
}

// Runtime is a wazero runtime with the installer guest instantiated in it.
type Runtime struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module
	guest    *guest
}

// NewRuntime compiles and instantiates the guest module named by the descriptor's qualifier.
func NewRuntime(ctx context.Context, d *bridge.Descriptor) (*Runtime, error) {
	q, err := bridge.ParseQualifier(d.Qualifier)
	if err != nil {
		return nil, err
	}
	path, err := d.ModulePath(q.Module)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module: %w", err)
	}

	r := &Runtime{
		runtime: wazero.NewRuntime(ctx),
		guest:   &guest{},
	}
	if err := r.load(ctx, d, q.Module, data); err != nil {
		_ = r.runtime.Close(ctx)
		return nil, err
	}
	return r, nil
}

func (r *Runtime) load(ctx context.Context, d *bridge.Descriptor, name string, data []byte) error {
	if d.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
			return fmt.Errorf("failed to instantiate WASI: %w", err)
		}
	}

	_, err := r.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, handle, ptr, count uint32) uint32 {
			return r.guest.copyToCString(ctx, handle, ptr, count)
		}).
		Export(bridge.CallbackName).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("failed to instantiate host module: %w", err)
	}

	compiled, err := r.runtime.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to compile WASM module: %w", err)
	}
	r.compiled = compiled

	config := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")
	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		config = config.WithEnv(k, d.Config[k])
	}

	instance, err := r.runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		return fmt.Errorf("failed to instantiate module: %w", err)
	}
	r.instance = instance

	mallocFn := instance.ExportedFunction("malloc")
	if mallocFn == nil {
		return fmt.Errorf("WASM module %q must export a malloc function", name)
	}
	freeFn := instance.ExportedFunction("free")
	if freeFn == nil {
		return fmt.Errorf("WASM module %q must export a free function", name)
	}
	paramCount := len(freeFn.Definition().ParamTypes())
	if paramCount != 1 && paramCount != 2 {
		return fmt.Errorf("free function must accept 1 (ptr) or 2 (ptr,len) parameters, got %d", paramCount)
	}
	if instance.Memory() == nil {
		return fmt.Errorf("WASM module %q must export its memory", name)
	}

	r.guest.mem = instance.Memory()
	r.guest.malloc = mallocFn
	r.guest.free = freeFn
	r.guest.freeTakesLen = paramCount == 2
	return nil
}

// Resolve looks up the export named by sig and checks its shape against the pointer ABI.
func (r *Runtime) Resolve(sig bridge.Signature) (bridge.Delegate, error) {
	fn := r.instance.ExportedFunction(sig.Name)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s is not exported", bridge.ErrContract, sig)
	}
	def := fn.Definition()
	if err := checkShape(sig, def.ParamTypes(), def.ResultTypes()); err != nil {
		return nil, err
	}
	return &delegate{guest: r.guest, fn: fn, sig: sig, handle: callbackHandle}, nil
}

// Close releases the module instance, compiled code and the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	if r.instance != nil {
		_ = r.instance.Close(ctx)
	}
	if r.compiled != nil {
		_ = r.compiled.Close(ctx)
	}
	return r.runtime.Close(ctx)
}

// checkShape verifies an export's wasm signature matches what sig marshals.
func checkShape(sig bridge.Signature, params, results []api.ValueType) error {
	if len(params) != sig.Params() {
		return fmt.Errorf("%w: %s takes %d params, want %d", bridge.ErrContract, sig.Name, len(params), sig.Params())
	}
	for i, p := range params {
		if p != api.ValueTypeI32 {
			return fmt.Errorf("%w: %s param %d is %s, want i32", bridge.ErrContract, sig.Name, i, api.ValueTypeName(p))
		}
	}

	switch sig.Returns {
	case bridge.ReturnNone:
		if len(results) != 0 {
			return fmt.Errorf("%w: %s returns %d values, want none", bridge.ErrContract, sig.Name, len(results))
		}
	case bridge.ReturnString, bridge.ReturnByte:
		if len(results) != 1 || results[0] != api.ValueTypeI32 {
			return fmt.Errorf("%w: %s must return a single i32", bridge.ErrContract, sig.Name)
		}
	case bridge.ReturnIgnored:
		if len(results) > 1 {
			return fmt.Errorf("%w: %s returns %d values, want at most one", bridge.ErrContract, sig.Name, len(results))
		}
	}
	return nil
}
