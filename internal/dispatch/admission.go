package dispatch

import (
	"context"
	"sync"
	"time"
)

// Admission tells whether workers may claim new missions.
type Admission int

const (
	Postponed Admission = iota
	Allowed
	Forbidden
)

func (a Admission) String() string {
	switch a {
	case Postponed:
		return "POSTPONED"
	case Allowed:
		return "ALLOWED"
	case Forbidden:
		return "FORBIDDEN"
	default:
		return "UNKNOWN"
	}
}

// admission guards the admission state together with the elapsed-time
// clock. The clock is armed by the first claimed mission and only accrues
// while admission is Allowed.
type admission struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state Admission

	armed   bool
	running bool
	since   time.Time
	accrued time.Duration

	now func() time.Time
}

func newAdmission() *admission {
	a := &admission{state: Postponed, now: time.Now}
	a.cond = sync.NewCond(&a.mu)
	return a
}

func (a *admission) broadcast() {
	a.mu.Lock()
	a.cond.Broadcast()
	a.mu.Unlock()
}

func (a *admission) get() Admission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// allow moves Postponed to Allowed and restarts the clock if it is armed.
func (a *admission) allow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Postponed {
		return false
	}
	a.state = Allowed
	if a.armed {
		a.running = true
		a.since = a.now()
	}
	a.cond.Broadcast()
	return true
}

// postpone moves Allowed to Postponed and freezes the clock.
func (a *admission) postpone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Allowed {
		return false
	}
	a.state = Postponed
	a.pauseClock()
	a.cond.Broadcast()
	return true
}

// forbid is terminal; it reports whether this call made the transition.
func (a *admission) forbid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Forbidden {
		return false
	}
	a.state = Forbidden
	a.pauseClock()
	a.cond.Broadcast()
	return true
}

func (a *admission) pauseClock() {
	if a.running {
		a.accrued += a.now().Sub(a.since)
		a.running = false
	}
}

// arm starts the clock on the first claimed mission.
func (a *admission) arm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed {
		return
	}
	a.armed = true
	if a.state == Allowed {
		a.running = true
		a.since = a.now()
	}
}

func (a *admission) elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return a.accrued + a.now().Sub(a.since)
	}
	return a.accrued
}

// await blocks while admission is Postponed. It returns true when missions
// may be claimed.
func (a *admission) await(ctx context.Context, failed func() bool) bool {
	stop := context.AfterFunc(ctx, a.broadcast)
	defer stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	for a.state == Postponed && ctx.Err() == nil && !failed() {
		a.cond.Wait()
	}
	return a.state == Allowed && ctx.Err() == nil && !failed()
}
