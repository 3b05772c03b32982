package dispatch

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAdmissionTransitions(t *testing.T) {
	testCases := []struct {
		name   string
		steps  func(a *admission)
		expect Admission
	}{
		{name: "initial state", steps: func(a *admission) {}, expect: Postponed},
		{name: "allow", steps: func(a *admission) { a.allow() }, expect: Allowed},
		{name: "allow then postpone", steps: func(a *admission) { a.allow(); a.postpone() }, expect: Postponed},
		{name: "postpone while postponed", steps: func(a *admission) { a.postpone() }, expect: Postponed},
		{name: "forbid from postponed", steps: func(a *admission) { a.forbid() }, expect: Forbidden},
		{name: "forbid from allowed", steps: func(a *admission) { a.allow(); a.forbid() }, expect: Forbidden},
		{name: "forbidden is terminal", steps: func(a *admission) { a.forbid(); a.allow(); a.postpone() }, expect: Forbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAdmission()
			tc.steps(a)
			if got := a.get(); got != tc.expect {
				t.Errorf("Expected %v, got %v", tc.expect, got)
			}
		})
	}
}

func TestAdmissionForbidIsIdempotent(t *testing.T) {
	a := newAdmission()
	if !a.forbid() {
		t.Errorf("Expected the first forbid to transition")
	}
	if a.forbid() {
		t.Errorf("Expected the second forbid to be a no-op")
	}
}

func TestAdmissionClock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	a := newAdmission()
	a.now = clock.now

	a.allow()
	clock.advance(time.Second)
	if a.elapsed() != 0 {
		t.Errorf("Expected the clock to wait for the first claim, got %s", a.elapsed())
	}

	a.arm()
	clock.advance(2 * time.Second)
	if got := a.elapsed(); got != 2*time.Second {
		t.Errorf("Expected 2s, got %s", got)
	}

	a.postpone()
	clock.advance(5 * time.Second)
	if got := a.elapsed(); got != 2*time.Second {
		t.Errorf("Expected the clock frozen at 2s, got %s", got)
	}

	a.allow()
	clock.advance(time.Second)
	if got := a.elapsed(); got != 3*time.Second {
		t.Errorf("Expected 3s, got %s", got)
	}

	a.forbid()
	clock.advance(time.Minute)
	if got := a.elapsed(); got != 3*time.Second {
		t.Errorf("Expected the clock to stop at 3s, got %s", got)
	}
}

func TestAdmissionAwait(t *testing.T) {
	never := func() bool { return false }

	a := newAdmission()
	result := make(chan bool, 1)
	go func() { result <- a.await(context.Background(), never) }()

	select {
	case <-result:
		t.Fatalf("await returned while postponed")
	case <-time.After(20 * time.Millisecond):
	}
	a.allow()
	select {
	case ok := <-result:
		if !ok {
			t.Errorf("Expected await to admit once allowed")
		}
	case <-time.After(time.Second):
		t.Fatalf("await did not return after allow")
	}

	b := newAdmission()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if b.await(ctx, never) {
		t.Errorf("Expected await to give up with its context")
	}

	c := newAdmission()
	c.forbid()
	if c.await(context.Background(), never) {
		t.Errorf("Expected no admission once forbidden")
	}
}
