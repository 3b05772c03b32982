package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// intSource yields 0..total-1; total < 0 means never ending.
type intSource struct {
	mu    sync.Mutex
	next  int
	total int
	calls atomic.Int64
	err   error

	inits, finals atomic.Int64
}

func (s *intSource) GetNext(ctx context.Context) (int, bool, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil && s.next == 3 {
		return 0, false, s.err
	}
	if s.total >= 0 && s.next >= s.total {
		return 0, false, nil
	}
	n := s.next
	s.next++
	return n, true, nil
}

func (s *intSource) Initialize(ctx context.Context) error {
	s.inits.Add(1)
	return nil
}

func (s *intSource) Finalize(ctx context.Context) error {
	s.finals.Add(1)
	return nil
}

// countedSource adds an expected count to intSource.
type countedSource struct {
	intSource
	expected int
	countErr error
}

func (s *countedSource) ComputeExpectedCount(ctx context.Context) (int, error) {
	return s.expected, s.countErr
}

// ledger is shared by a stem task and all of its clones.
type ledger struct {
	mu     sync.Mutex
	seen   map[int]int
	clones atomic.Int64
}

func newLedger() *ledger { return &ledger{seen: map[int]int{}} }

func (l *ledger) record(m int) {
	l.mu.Lock()
	l.seen[m]++
	l.mu.Unlock()
}

func (l *ledger) snapshot() map[int]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int]int, len(l.seen))
	for k, v := range l.seen {
		out[k] = v
	}
	return out
}

type recordTask struct {
	ledger *ledger
	failOn int
	result int
	delay  time.Duration
	panics bool
}

func newRecordTask(l *ledger) *recordTask {
	return &recordTask{ledger: l, failOn: -1, result: 1}
}

func (t *recordTask) Do(ctx context.Context, m int) (int, error) {
	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	if m == t.failOn {
		if t.panics {
			panic("mission blew up")
		}
		return 0, errBoom
	}
	t.ledger.record(m)
	return t.result, nil
}

func (t *recordTask) NewOne() Task[int] {
	t.ledger.clones.Add(1)
	c := *t
	return &c
}

func newTestEnterprise(t *testing.T, wished int, src Source[int], task Task[int], opts ...Option) *Enterprise[int] {
	t.Helper()
	e, err := NewEnterprise(wished, NewMissionner(src), NewWorker(task), opts...)
	if err != nil {
		t.Fatalf("NewEnterprise failed: %v", err)
	}
	return e
}

// runToEnd runs e and fails the test if it does not close down in time.
func runToEnd(t *testing.T, e *Enterprise[int]) {
	t.Helper()
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitClosed(t, e)
}

func waitClosed(t *testing.T, e *Enterprise[int]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("enterprise did not close down: %v", err)
	}
}

func waitProduction(t *testing.T, m *Missionner[int]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("production did not stop: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
