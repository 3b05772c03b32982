package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"toolbox/internal/logger"
)

// Expected count sentinels. Any other value is a non-negative count.
const (
	NotComputed   = -1
	NotAvailable  = -2
	NotComputable = -3
)

// Source produces the mission stream. GetNext may block arbitrarily; it
// returns ok=false once the stream is exhausted.
type Source[M any] interface {
	GetNext(ctx context.Context) (mission M, ok bool, err error)
}

// ExpectedCounter is implemented by sources that can tell up front how many
// results the whole stream will produce. Returning NotComputable declines.
type ExpectedCounter interface {
	ComputeExpectedCount(ctx context.Context) (int, error)
}

// Missionner runs the Source on its own goroutine and keeps at most one
// produced mission waiting for a claimer.
type Missionner[M any] struct {
	Employee[M]
	source Source[M]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	cond       *sync.Cond
	next       M
	has        bool
	started    bool
	stopped    bool
	finished   bool
	production int64

	expMu    sync.Mutex
	expCond  *sync.Cond
	expected int
}

func NewMissionner[M any](source Source[M]) *Missionner[M] {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Missionner[M]{
		source:   source,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		expected: NotComputed,
	}
	m.cond = sync.NewCond(&m.mu)
	m.expCond = sync.NewCond(&m.expMu)
	m.init("missionner", m.broadcast)
	return m
}

func (m *Missionner[M]) broadcast() {
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()

	m.expMu.Lock()
	m.expCond.Broadcast()
	m.expMu.Unlock()
}

func (m *Missionner[M]) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.produce()
}

// GetNext blocks until a mission is buffered, production is over, a failure
// was recorded or ctx is done. Exactly one caller receives each mission.
func (m *Missionner[M]) GetNext(ctx context.Context) (M, bool) {
	m.start()
	stop := context.AfterFunc(ctx, m.broadcast)
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	var zero M
	for {
		if m.stopped || ctx.Err() != nil || m.failed() {
			return zero, false
		}
		if m.has {
			mission := m.next
			m.next = zero
			m.has = false
			m.cond.Broadcast()
			return mission, true
		}
		if m.finished {
			return zero, false
		}
		m.cond.Wait()
	}
}

// HasNext waits like GetNext but leaves the mission in place. Another caller
// may claim it before the following GetNext, so only GetNext is authoritative.
func (m *Missionner[M]) HasNext(ctx context.Context) bool {
	m.start()
	stop := context.AfterFunc(ctx, m.broadcast)
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if m.stopped || ctx.Err() != nil || m.failed() {
			return false
		}
		if m.has {
			return true
		}
		if m.finished {
			return false
		}
		m.cond.Wait()
	}
}

// StopDispensing ends production. A mission still buffered is dropped.
func (m *Missionner[M]) StopDispensing() {
	m.mu.Lock()
	m.stopped = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Buffered returns 1 while a produced mission waits for a claimer, else 0.
func (m *Missionner[M]) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.has {
		return 1
	}
	return 0
}

func (m *Missionner[M]) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Finished reports whether the production loop has exited.
func (m *Missionner[M]) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// Produced is the number of missions published so far.
func (m *Missionner[M]) Produced() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.production
}

// exhausted reports that no mission will ever be handed out again.
func (m *Missionner[M]) exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped || (m.finished && !m.has)
}

// interrupt cancels the context handed to the source callbacks.
func (m *Missionner[M]) interrupt() {
	m.cancel()
}

// Wait blocks until the production loop has exited, so the source is
// finalized, or ctx is done. It returns at once if production never started.
func (m *Missionner[M]) Wait(ctx context.Context) error {
	if !m.Started() {
		return nil
	}
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpectedCount returns the expected result count. With wait set it blocks
// until the value is a count or NotComputable, a failure is recorded or ctx
// is done, and returns whatever is known by then.
func (m *Missionner[M]) ExpectedCount(ctx context.Context, wait bool) int {
	m.expMu.Lock()
	defer m.expMu.Unlock()
	if !wait {
		return m.expected
	}

	stop := context.AfterFunc(ctx, m.broadcast)
	defer stop()
	for (m.expected == NotComputed || m.expected == NotAvailable) && ctx.Err() == nil && !m.failed() {
		m.expCond.Wait()
	}
	return m.expected
}

func (m *Missionner[M]) produce() {
	defer close(m.done)
	defer m.finish()
	defer func() {
		if rec := recover(); rec != nil {
			m.ReportExceptions(fmt.Errorf("panic in %s: %v", m.Name(), rec))
		}
	}()

	ctx := m.ctx
	stop := context.AfterFunc(ctx, m.broadcast)
	defer stop()

	defer func() {
		if err := finalize(ctx, m.Name(), m.source); err != nil {
			m.ReportExceptions(err)
		}
	}()
	if err := initialize(ctx, m.Name(), m.source); err != nil {
		m.ReportExceptions(err)
		return
	}
	logger.Log.WithField("missionner", m.Name()).Debug("[Missionner] production started")

	countCtx, cancelCount := context.WithCancel(ctx)
	defer cancelCount()
	go m.computeExpectedCount(countCtx)

	for !m.halted(ctx) {
		var (
			mission M
			ok      bool
		)
		err := protect(m.Name()+" get next", func() error {
			var err error
			mission, ok, err = m.source.GetNext(ctx)
			return err
		})
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return
			}
			m.ReportExceptions(fmt.Errorf("%s: get next mission: %w", m.Name(), err))
			return
		}
		if !ok {
			return
		}
		if !m.publish(ctx, mission) {
			return
		}
	}
}

func (m *Missionner[M]) halted(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped || ctx.Err() != nil || m.failed()
}

// publish waits for the previous mission to be claimed, then buffers this one.
func (m *Missionner[M]) publish(ctx context.Context, mission M) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.has && !m.stopped && ctx.Err() == nil && !m.failed() {
		m.cond.Wait()
	}
	if m.stopped || ctx.Err() != nil || m.failed() {
		return false
	}
	m.next = mission
	m.has = true
	m.production++
	m.cond.Broadcast()
	return true
}

func (m *Missionner[M]) finish() {
	m.mu.Lock()
	m.finished = true
	produced := m.production
	m.cond.Broadcast()
	m.mu.Unlock()

	logger.Log.WithFields(logrus.Fields{
		"missionner": m.Name(),
		"produced":   produced,
	}).Debug("[Missionner] production finished")

	if ent := m.Enterprise(); ent != nil {
		ent.wake()
	}
}

func (m *Missionner[M]) computeExpectedCount(ctx context.Context) {
	m.expMu.Lock()
	if m.expected != NotComputed {
		m.expMu.Unlock()
		return
	}
	m.expected = NotAvailable
	m.expMu.Unlock()

	n := NotComputable
	var failure error
	if c, ok := m.source.(ExpectedCounter); ok {
		err := protect(m.Name()+" expected count", func() error {
			var err error
			n, err = c.ComputeExpectedCount(ctx)
			return err
		})
		switch {
		case err != nil && ctx.Err() != nil:
			n = NotComputable
		case err != nil:
			failure = fmt.Errorf("%s: compute expected count: %w", m.Name(), err)
			n = NotComputable
		case n < 0 && n != NotComputable:
			failure = fmt.Errorf("%s: %w: %d", m.Name(), ErrBadExpectedCount, n)
			n = NotComputable
		}
	}

	m.expMu.Lock()
	m.expected = n
	m.expCond.Broadcast()
	m.expMu.Unlock()

	if failure != nil {
		m.ReportExceptions(failure)
	}
}
