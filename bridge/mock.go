package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MockRuntime is an in-memory secondary runtime for testing.
// It implements the installer contract in Go and produces every string through the registered
// callback, the same way a real guest does, so registration order and buffer ownership are
// exercised. This is exported so it can be used by tests in other packages.
type MockRuntime struct {
	// Missing lists contract functions whose resolution fails.
	Missing map[string]bool
	// Delay is slept inside every call to widen the critical section.
	Delay time.Duration
	// PathValid decides IsPathValid. Nil accepts every path.
	PathValid func(path string) bool
	// OmitVersion makes FillOutManifest leave the version slot null.
	OmitVersion bool
	// OmitManifest makes FillOutManifest leave the manifest slot null.
	OmitManifest bool
	// CorruptReturn makes string returns invalid UTF-8, bypassing the callback.
	CorruptReturn bool

	mu          sync.Mutex
	registered  bool
	calls       map[string]int
	closed      bool
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	outstanding atomic.Int32
}

// NewMockRuntime creates a mock runtime that accepts all contract functions.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Missing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

// Resolve implements Runtime.
func (m *MockRuntime) Resolve(sig Signature) (Delegate, error) {
	if m.Missing[sig.Name] {
		return nil, fmt.Errorf("%w: %s not exported", ErrContract, sig)
	}
	return &mockDelegate{runtime: m, sig: sig}, nil
}

// Close implements Runtime.
func (m *MockRuntime) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockRuntime) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Calls returns how many times the named function was invoked.
func (m *MockRuntime) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// MaxInFlight returns the highest number of calls that were ever executing at once.
func (m *MockRuntime) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// Outstanding returns the number of guest allocations handed to the host and not yet released.
func (m *MockRuntime) Outstanding() int {
	return int(m.outstanding.Load())
}

func (m *MockRuntime) enter(name string) {
	n := m.inFlight.Add(1)
	for {
		max := m.maxInFlight.Load()
		if n <= max || m.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *MockRuntime) exit() {
	m.inFlight.Add(-1)
}

// copyToCString plays the guest side of the callback: it hands a UTF-16 string to the host
// callback and receives a narrow buffer the host must later release.
func (m *MockRuntime) copyToCString(s string) *ForeignBuffer {
	m.mu.Lock()
	registered := m.registered
	m.mu.Unlock()
	if !registered {
		return nil
	}

	narrow, err := NarrowString(WideString(s))
	if err != nil {
		return nil
	}
	return m.allocate(narrow)
}

func (m *MockRuntime) allocate(data []byte) *ForeignBuffer {
	m.outstanding.Add(1)
	return NewForeignBuffer(data, func() {
		m.outstanding.Add(-1)
	})
}

func (m *MockRuntime) stringReturn(s string) *ForeignBuffer {
	if m.CorruptReturn {
		return m.allocate([]byte{0xff, 0xfe, 0xfd})
	}
	return m.copyToCString(s)
}

type mockDelegate struct {
	runtime *MockRuntime
	sig     Signature
}

type mockProfilePlugin struct {
	Type            string `json:"$type"`
	InternalName    string `json:"InternalName"`
	WorkingPluginID string `json:"WorkingPluginId"`
	IsEnabled       bool   `json:"IsEnabled"`
}

type mockRepoSettings struct {
	Type      string  `json:"$type"`
	URL       string  `json:"Url"`
	IsEnabled bool    `json:"IsEnabled"`
	Name      *string `json:"Name"`
}

func (d *mockDelegate) Invoke(ctx context.Context, args []string) (*Result, error) {
	m := d.runtime
	if len(args) != d.sig.Strings {
		return nil, fmt.Errorf("%w: %s takes %d strings, got %d", ErrContract, d.sig.Name, d.sig.Strings, len(args))
	}

	m.enter(d.sig.Name)
	defer m.exit()

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	switch d.sig.Name {
	case FuncSetCallback:
		m.mu.Lock()
		m.registered = true
		m.mu.Unlock()
		return &Result{}, nil

	case FuncMakePlugin:
		id, err := uuid.Parse(args[1])
		if err != nil {
			return nil, fmt.Errorf("guest rejected working id %q: %w", args[1], err)
		}
		data, err := json.MarshalIndent(mockProfilePlugin{
			Type:            "Dalamud.Plugin.Internal.Profiles.ProfileModelV1+ProfileModelV1Plugin, Dalamud",
			InternalName:    args[0],
			WorkingPluginID: id.String(),
			IsEnabled:       true,
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return &Result{Return: m.stringReturn(string(data))}, nil

	case FuncMakeRepo:
		data, err := json.MarshalIndent(mockRepoSettings{
			Type:      "Dalamud.Configuration.ThirdPartyRepoSettings, Dalamud",
			URL:       args[0],
			IsEnabled: true,
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return &Result{Return: m.stringReturn(string(data))}, nil

	case FuncFillOutManifest:
		res := &Result{Outputs: make([]*ForeignBuffer, 2)}
		var manifest map[string]any
		if err := json.Unmarshal([]byte(args[0]), &manifest); err != nil {
			return res, nil
		}
		manifest["WorkingPluginId"] = args[1]
		manifest["InstalledFromUrl"] = args[2]

		data, err := json.Marshal(manifest)
		if err != nil {
			return res, nil
		}
		if !m.OmitManifest {
			res.Outputs[0] = m.stringReturn(string(data))
		}
		if version, ok := manifest["AssemblyVersion"].(string); ok && version != "" && !m.OmitVersion {
			res.Outputs[1] = m.stringReturn(version)
		}
		return res, nil

	case FuncIsPathValid:
		valid := m.PathValid == nil || m.PathValid(args[0])
		if valid {
			return &Result{Byte: 1}, nil
		}
		return &Result{Byte: 0}, nil
	}

	return nil, fmt.Errorf("%w: mock does not implement %s", ErrContract, d.sig.Name)
}
