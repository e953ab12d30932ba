package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/joncooperworks/pluginstall/observability"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for contract violations and call tracing.
func WithLogger(log *logrus.Logger) Option {
	return func(b *Bridge) {
		b.log = log
	}
}

// WithMetrics records foreign call metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// Completion is the output of FillOutManifest.
type Completion struct {
	// Manifest is the completed manifest JSON.
	Manifest string
	// Version is the resolved plugin version string.
	Version string
}

// Bridge is the single access point to a secondary runtime.
//
// Only one foreign call runs at a time process-wide for a given Bridge. Waiting for the lock
// honours ctx; the foreign call itself is not interruptible once started.
type Bridge struct {
	runtime   Runtime
	qualifier string
	delegates map[string]Delegate

	sem *semaphore.Weighted

	register    sync.Once
	registerErr error

	log     *logrus.Logger
	metrics *observability.Metrics
}

// New wraps rt, resolving and caching every contract function under qualifier.
// A resolution failure means the host and guest disagree on the contract and is returned as a
// single error wrapping ErrContract.
func New(rt Runtime, qualifier string, opts ...Option) (*Bridge, error) {
	if rt == nil {
		return nil, errors.New("runtime cannot be nil")
	}
	if qualifier == "" {
		qualifier = DefaultQualifier
	}
	if _, err := ParseQualifier(qualifier); err != nil {
		return nil, err
	}

	b := &Bridge{
		runtime:   rt,
		qualifier: qualifier,
		delegates: make(map[string]Delegate),
		sem:       semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = observability.OrDefault(b.log)

	for _, sig := range Contract(qualifier) {
		d, err := rt.Resolve(sig)
		if err != nil {
			if !errors.Is(err, ErrContract) {
				err = fmt.Errorf("%w: %w", ErrContract, err)
			}
			return nil, fmt.Errorf("failed to resolve %s: %w", sig.Name, err)
		}
		b.delegates[sig.Name] = d
	}

	return b, nil
}

// Qualifier returns the module-qualified type name the contract was resolved under.
func (b *Bridge) Qualifier() string {
	return b.qualifier
}

// MakePlugin asks the guest for a profile plugin entry for internalName.
func (b *Bridge) MakePlugin(ctx context.Context, internalName, workingID string) (string, error) {
	var out string
	err := b.call(ctx, FuncMakePlugin, []string{internalName, workingID}, func(r *Result) error {
		var err error
		out, err = r.Return.Take()
		return err
	})
	return out, err
}

// MakeRepo asks the guest for a third-party repository entry for url.
func (b *Bridge) MakeRepo(ctx context.Context, url string) (string, error) {
	var out string
	err := b.call(ctx, FuncMakeRepo, []string{url}, func(r *Result) error {
		var err error
		out, err = r.Return.Take()
		return err
	})
	return out, err
}

// FillOutManifest hands the raw manifest to the guest and receives the completed manifest and
// its version. A null in either slot is a failure of the whole call; no partial result escapes.
func (b *Bridge) FillOutManifest(ctx context.Context, manifest, workingID, repoURL string) (Completion, error) {
	var c Completion
	err := b.call(ctx, FuncFillOutManifest, []string{manifest, workingID, repoURL}, func(r *Result) error {
		if len(r.Outputs) != 2 {
			return fmt.Errorf("%w: expected 2 output slots, got %d", ErrContract, len(r.Outputs))
		}
		if r.Outputs[0] == nil || r.Outputs[1] == nil {
			return fmt.Errorf("%w: manifest=%t version=%t", ErrNullResult, r.Outputs[0] != nil, r.Outputs[1] != nil)
		}

		completed, err := r.Outputs[0].Take()
		if err != nil {
			return fmt.Errorf("manifest: %w", err)
		}
		version, err := r.Outputs[1].Take()
		if err != nil {
			return fmt.Errorf("version: %w", err)
		}

		c = Completion{Manifest: completed, Version: version}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	return c, nil
}

// IsPathValid asks the guest whether path is acceptable to it.
func (b *Bridge) IsPathValid(ctx context.Context, path string) (bool, error) {
	var valid bool
	err := b.call(ctx, FuncIsPathValid, []string{path}, func(r *Result) error {
		valid = r.Byte != 0
		return nil
	})
	return valid, err
}

// Close waits for any in-flight call and shuts the runtime down.
func (b *Bridge) Close(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire runtime: %w", err)
	}
	defer b.sem.Release(1)
	return b.runtime.Close(ctx)
}

// call holds the runtime exclusively for one foreign call. take runs inside the critical section
// so guest buffers are copied out before anything else can touch guest memory.
func (b *Bridge) call(ctx context.Context, name string, args []string, take func(*Result) error) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire runtime for %s: %w", name, err)
	}
	defer b.sem.Release(1)

	b.register.Do(func() {
		b.registerErr = b.invokeLocked(context.WithoutCancel(ctx), FuncSetCallback, nil, func(*Result) error {
			return nil
		})
		if b.registerErr == nil {
			b.log.WithField("qualifier", b.qualifier).Debug("registered string callback with secondary runtime")
		}
	})
	if b.registerErr != nil {
		return fmt.Errorf("failed to register string callback: %w", b.registerErr)
	}

	return b.invokeLocked(ctx, name, args, take)
}

func (b *Bridge) invokeLocked(ctx context.Context, name string, args []string, take func(*Result) error) error {
	d, ok := b.delegates[name]
	if !ok {
		return fmt.Errorf("%w: %s was never resolved", ErrContract, name)
	}

	b.metrics.ForeignCallStarted()
	start := time.Now()

	res, err := d.Invoke(ctx, args)
	if err == nil {
		err = take(res)
	}
	res.Release()

	b.metrics.ForeignCallFinished(name, time.Since(start), err)

	if err != nil {
		entry := b.log.WithField("function", name).WithError(err)
		if errors.Is(err, ErrInvalidEncoding) || errors.Is(err, ErrContract) {
			entry.WithField("contract_violation", true).Error("secondary runtime broke the calling contract")
		} else {
			entry.Debug("foreign call failed")
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
