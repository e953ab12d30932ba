// Package bridge hosts the installer's secondary runtime and calls into its exported functions.
//
// A Runtime is a loaded guest context produced by a registered backend (see RegisterRuntime).
// The Bridge wraps one Runtime, resolves the whole installer contract up front, performs the
// one-time callback registration and serializes every foreign call behind a single lock.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Runtime is an initialized secondary-runtime host context. It owns every delegate it resolves.
type Runtime interface {
	// Resolve looks up the export described by sig. It fails with ErrContract when the export is
	// missing or does not have the expected shape.
	Resolve(sig Signature) (Delegate, error)
	// Close tears the runtime down. Delegates must not be used afterwards.
	Close(ctx context.Context) error
}

// Delegate is a resolved callable reference to one exported guest function.
//
// Implementations marshal args according to the signature they were resolved with. They are not
// required to be safe for concurrent use; the Bridge never calls two delegates at once.
type Delegate interface {
	Invoke(ctx context.Context, args []string) (*Result, error)
}

// Descriptor is the runtime-configuration file the secondary runtime is loaded from.
type Descriptor struct {
	// Runtime selects the backend, e.g. "wasm" or "extism".
	Runtime string `json:"runtime"`
	// Qualifier is the module-qualified type name the contract is exported under.
	Qualifier string `json:"qualifier,omitempty"`
	// Modules maps guest module names to module files, relative to the descriptor.
	Modules map[string]string `json:"modules"`
	// WASI enables WASI preview 1 for the guest.
	WASI bool `json:"wasi,omitempty"`
	// Config is passed to backends that support guest configuration.
	Config map[string]string `json:"config,omitempty"`

	dir string
}

// LoadDescriptor reads and validates a runtime-configuration file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime config: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse runtime config %s: %w", path, err)
	}
	if d.Runtime == "" {
		return nil, errors.New("runtime config must name a runtime")
	}
	if len(d.Modules) == 0 {
		return nil, errors.New("runtime config must list at least one module")
	}
	if d.Qualifier == "" {
		d.Qualifier = DefaultQualifier
	}
	if _, err := ParseQualifier(d.Qualifier); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve runtime config path: %w", err)
	}
	d.dir = filepath.Dir(abs)
	return &d, nil
}

// ModulePath returns the on-disk path of the named guest module.
func (d *Descriptor) ModulePath(module string) (string, error) {
	rel, ok := d.Modules[module]
	if !ok {
		return "", fmt.Errorf("%w: module %q not listed in runtime config", ErrContract, module)
	}
	if filepath.IsAbs(rel) {
		return rel, nil
	}
	return filepath.Join(d.dir, rel), nil
}

// Initialize loads the runtime described by configPath and wraps it in a Bridge.
// Failure here means the process cannot serve any installer operation.
func Initialize(ctx context.Context, configPath string, opts ...Option) (*Bridge, error) {
	d, err := LoadDescriptor(configPath)
	if err != nil {
		return nil, err
	}

	factory, err := GetRuntimeFactory(d.Runtime)
	if err != nil {
		return nil, err
	}

	rt, err := factory(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s runtime: %w", d.Runtime, err)
	}

	b, err := New(rt, d.Qualifier, opts...)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return b, nil
}
