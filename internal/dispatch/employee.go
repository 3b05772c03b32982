package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Initializer is implemented by sources and tasks that need a setup step
// before their role starts looping.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Finalizer is implemented by sources and tasks that need a cleanup step
// once their role stops looping, whatever the reason.
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// Employee is the part shared by the Missionner and every Worker: an
// identity, a local failure bag and the write-once binding to the owning
// Enterprise.
type Employee[M any] struct {
	name string

	bindMu     sync.Mutex
	enterprise *Enterprise[M]
	failures   Failures

	// wake broadcasts the role's own condition so waiters observe failures.
	wake func()
}

func (e *Employee[M]) init(prefix string, wake func()) {
	e.name = fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])
	e.wake = wake
}

func (e *Employee[M]) Name() string { return e.name }

// Enterprise returns the owning coordinator, nil before hiring.
func (e *Employee[M]) Enterprise() *Enterprise[M] {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()
	return e.enterprise
}

// hiredBy binds the coordinator exactly once and forwards the failures
// recorded before the binding.
func (e *Employee[M]) hiredBy(ent *Enterprise[M]) error {
	if ent == nil {
		return fmt.Errorf("hire %s: %w", e.name, ErrNilEnterprise)
	}

	e.bindMu.Lock()
	if e.enterprise != nil {
		e.bindMu.Unlock()
		return fmt.Errorf("hire %s: %w", e.name, ErrAlreadyHired)
	}
	e.enterprise = ent
	pending := e.failures.Errors()
	e.bindMu.Unlock()

	if len(pending) > 0 {
		ent.collectExceptions(pending...)
	}
	return nil
}

// ReportExceptions records errs locally and on the enterprise failure bus
// once hired, then wakes anything waiting on this role.
func (e *Employee[M]) ReportExceptions(errs ...error) {
	e.bindMu.Lock()
	n := e.failures.Add(errs...)
	ent := e.enterprise
	e.bindMu.Unlock()

	if n == 0 {
		return
	}
	if ent != nil {
		ent.collectExceptions(errs...)
	}
	if e.wake != nil {
		e.wake()
	}
}

func (e *Employee[M]) Exceptions() []error { return e.failures.Errors() }

func (e *Employee[M]) HasExceptions() bool { return e.failures.Len() > 0 }

// failed reports whether this role or its enterprise recorded a failure.
func (e *Employee[M]) failed() bool {
	if e.HasExceptions() {
		return true
	}
	ent := e.Enterprise()
	return ent != nil && ent.HasExceptions()
}

func initialize(ctx context.Context, role string, v any) error {
	i, ok := v.(Initializer)
	if !ok {
		return nil
	}
	return protect(role+" initialize", func() error { return i.Initialize(ctx) })
}

// finalize runs even after an interrupt, so the hook gets a context that
// keeps the values but drops the cancellation.
func finalize(ctx context.Context, role string, v any) error {
	f, ok := v.(Finalizer)
	if !ok {
		return nil
	}
	return protect(role+" finalize", func() error { return f.Finalize(context.WithoutCancel(ctx)) })
}
