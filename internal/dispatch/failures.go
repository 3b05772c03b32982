package dispatch

import (
	"errors"
	"sync"
)

// Failures is an append-only, goroutine-safe error bag. An Enterprise owns
// one shared instance and every role forwards its own failures into it.
type Failures struct {
	mu   sync.Mutex
	errs []error
}

// Add appends the non-nil errors and reports how many were recorded.
func (f *Failures) Add(errs ...error) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		f.errs = append(f.errs, err)
		n++
	}
	return n
}

func (f *Failures) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errs)
}

// Errors returns a snapshot in recording order.
func (f *Failures) Errors() []error {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]error, len(f.errs))
	copy(out, f.errs)
	return out
}

// Err joins every recorded error, nil when the bag is empty.
func (f *Failures) Err() error {
	return errors.Join(f.Errors()...)
}
