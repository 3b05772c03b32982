package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyHired     = errors.New("employee is already hired by an enterprise")
	ErrNilEnterprise    = errors.New("nil enterprise")
	ErrNegativeResult   = errors.New("negative result count")
	ErrBadExpectedCount = errors.New("invalid expected count")
	ErrBadWorkerCount   = errors.New("wished worker count must be at least 1")
	ErrAlreadyStarted   = errors.New("enterprise already started")
	ErrNilClone         = errors.New("clone factory returned nil")
)

// protect runs fn and turns a panic into an error so the failure reaches the
// failure bus instead of killing the process.
func protect(what string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s: %v", what, rec)
		}
	}()
	return fn()
}
