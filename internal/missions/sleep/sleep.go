package sleep

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"toolbox/internal/dispatch"
)

// Task waits Delay per mission and reports Results results. When FailAt is
// positive, the FailAt-th mission executed across all clones fails.
type Task[M any] struct {
	Delay   time.Duration
	Results int
	FailAt  int64

	executed *atomic.Int64
}

func New[M any](delay time.Duration, failAt int64) *Task[M] {
	return &Task[M]{
		Delay:    delay,
		Results:  1,
		FailAt:   failAt,
		executed: new(atomic.Int64),
	}
}

func (t *Task[M]) Do(ctx context.Context, mission M) (int, error) {
	if err := Sleep(ctx, t.Delay); err != nil {
		return 0, err
	}
	n := t.executed.Add(1)
	if t.FailAt > 0 && n == t.FailAt {
		return 0, fmt.Errorf("mission %v: failure injected at mission #%d", mission, n)
	}
	return t.Results, nil
}

// NewOne shares the execution counter so FailAt counts across clones.
func (t *Task[M]) NewOne() dispatch.Task[M] {
	c := *t
	return &c
}

// Executed is the number of missions started by this task and its clones.
func (t *Task[M]) Executed() int64 { return t.executed.Load() }

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
