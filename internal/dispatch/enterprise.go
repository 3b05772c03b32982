package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"toolbox/internal/logger"
	"toolbox/internal/metrics"
)

// Option customizes an Enterprise at construction.
type Option func(*options)

type options struct {
	name           string
	startPostponed bool
}

// WithName sets the name used in logs and snapshots.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithStartPostponed keeps admission Postponed when the Enterprise starts,
// so no mission is claimed before AllowNewMissionsStart.
func WithStartPostponed() Option {
	return func(o *options) { o.startPostponed = true }
}

// Enterprise hires and dismisses workers to match the wished worker count,
// hands them missions from its Missionner and collects their results and
// failures. It closes down once the missions run out, a failure is recorded
// anywhere, or new missions are forbidden.
type Enterprise[M any] struct {
	opts       options
	missionner *Missionner[M]
	stem       *Worker[M]
	failures   Failures
	admission  *admission

	mu        sync.Mutex
	cond      *sync.Cond
	wished    int
	active    []*Worker[M]
	dismissed []*Worker[M]
	hired     int

	doneMu    sync.Mutex
	doneCount int64
	produced  int64
	lastDone  M
	hasLast   bool

	running    atomic.Bool
	closedDown atomic.Bool
	closed     chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewEnterprise binds missionner and stem to a new Enterprise. Both must be
// fresh: binding an employee twice is an error.
func NewEnterprise[M any](wished int, missionner *Missionner[M], stem *Worker[M], opts ...Option) (*Enterprise[M], error) {
	if wished < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadWorkerCount, wished)
	}
	if missionner == nil || stem == nil {
		return nil, fmt.Errorf("enterprise needs a missionner and a stem worker")
	}

	o := options{name: "enterprise"}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Enterprise[M]{
		opts:       o,
		missionner: missionner,
		stem:       stem,
		admission:  newAdmission(),
		wished:     wished,
		closed:     make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	if err := missionner.hiredBy(e); err != nil {
		return nil, err
	}
	if err := stem.hiredBy(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Enterprise[M]) Name() string { return e.opts.name }

func (e *Enterprise[M]) log() *logrus.Entry {
	return logger.Log.WithField("enterprise", e.opts.name)
}

func (e *Enterprise[M]) wake() {
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Start runs the Enterprise on a new goroutine. Use Wait to block until it
// has closed down.
func (e *Enterprise[M]) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go e.run(ctx)
	return nil
}

// Run runs the Enterprise on the calling goroutine until it has closed
// down. Failures are not returned: inspect Exceptions afterwards.
func (e *Enterprise[M]) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	e.run(ctx)
	return nil
}

// Wait blocks until the Enterprise has closed down or ctx is done.
func (e *Enterprise[M]) Wait(ctx context.Context) error {
	select {
	case <-e.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Enterprise[M]) run(parent context.Context) {
	defer close(e.closed)

	e.ctx, e.cancel = context.WithCancel(parent)
	defer e.cancel()

	stopParent := context.AfterFunc(parent, func() {
		e.collectExceptions(fmt.Errorf("%s: %w", e.opts.name, context.Cause(parent)))
	})
	defer stopParent()

	if !e.opts.startPostponed {
		e.AllowNewMissionsStart()
	}
	e.log().Infof("[Enterprise] Starting with %d wished worker(s)", e.WishedWorkersCount())

	e.mu.Lock()
	for !e.shouldCloseDown() {
		total := len(e.active) + len(e.dismissed)
		switch {
		case total < e.wished:
			w, err := e.recruit()
			if err != nil {
				e.mu.Unlock()
				e.collectExceptions(err)
				e.mu.Lock()
				continue
			}
			e.active = append(e.active, w)
			e.hired++
			wctx, cancel := context.WithCancel(e.ctx)
			w.start(wctx, cancel)
		case len(e.active) > e.wished:
			w := e.active[len(e.active)-1]
			e.active = e.active[:len(e.active)-1]
			e.dismissed = append(e.dismissed, w)
			e.mu.Unlock()
			w.Dismiss()
			e.log().WithField("worker", w.Name()).Info("[Enterprise] Dismissed worker")
			e.mu.Lock()
		default:
			e.cond.Wait()
		}
	}
	e.mu.Unlock()

	e.closeDown()
}

// shouldCloseDown is called with e.mu held.
func (e *Enterprise[M]) shouldCloseDown() bool {
	return e.missionner.exhausted() || e.HasExceptions() || e.admission.get() == Forbidden
}

// recruit clones the stem worker; the stem itself only serves as prototype.
func (e *Enterprise[M]) recruit() (*Worker[M], error) {
	w, err := e.stem.newOne()
	if err != nil {
		return nil, fmt.Errorf("%s: hire worker: %w", e.opts.name, err)
	}
	e.log().WithField("worker", w.Name()).Info("[Enterprise] Hired worker")
	return w, nil
}

func (e *Enterprise[M]) closeDown() {
	e.ForbidForeverNewMissionsStart()

	e.mu.Lock()
	remaining := make([]*Worker[M], 0, len(e.active)+len(e.dismissed))
	remaining = append(remaining, e.active...)
	remaining = append(remaining, e.dismissed...)
	e.mu.Unlock()

	failed := e.HasExceptions()
	if failed {
		e.log().Warnf("[Enterprise] Closing down after failure, interrupting %d worker(s)", len(remaining))
		for _, w := range remaining {
			w.interrupt()
		}
		e.missionner.interrupt()
	}

	for _, w := range remaining {
		<-w.Done()
	}

	// The producer may still sit in its source. It is told to stop but not
	// waited for: a source is free to ignore its context. Callers that need
	// the source finalized use Missionner().Wait.
	e.missionner.interrupt()

	e.closedDown.Store(true)
	e.wake()

	e.log().WithFields(logrus.Fields{
		"done":     e.DoneCount(),
		"produced": e.ProducedCount(),
		"failed":   failed,
	}).Infof("[Enterprise] Closed down after %s", e.ElapsedTime())
}

// GetNext waits for admission, then claims the next mission from the
// Missionner. The first successful claim starts the elapsed-time clock.
func (e *Enterprise[M]) GetNext(ctx context.Context) (M, bool) {
	var zero M
	if !e.admission.await(ctx, e.HasExceptions) {
		return zero, false
	}
	mission, ok := e.missionner.GetNext(ctx)
	if ok {
		e.admission.arm()
	}
	return mission, ok
}

func (e *Enterprise[M]) collectDone(mission M, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeResult, count)
	}

	e.doneMu.Lock()
	e.doneCount++
	e.produced += int64(count)
	e.lastDone = mission
	e.hasLast = true
	e.doneMu.Unlock()

	e.wake()
	return nil
}

func (e *Enterprise[M]) collectExceptions(errs ...error) {
	if e.failures.Add(errs...) == 0 {
		return
	}
	for _, err := range errs {
		if err != nil {
			e.log().Errorf("[Enterprise] Exception collected: %v", err)
		}
	}
	e.wake()
	e.admission.broadcast()
	e.missionner.broadcast()
}

func (e *Enterprise[M]) collectStarted(w *Worker[M]) {
	e.log().WithField("worker", w.Name()).Debug("[Enterprise] Worker started")
	e.wake()
}

func (e *Enterprise[M]) collectFinished(w *Worker[M]) {
	e.mu.Lock()
	e.active = without(e.active, w)
	e.dismissed = without(e.dismissed, w)
	e.cond.Broadcast()
	e.mu.Unlock()

	e.log().WithField("worker", w.Name()).Debug("[Enterprise] Worker finished")
}

func without[M any](workers []*Worker[M], w *Worker[M]) []*Worker[M] {
	for i, x := range workers {
		if x == w {
			return append(workers[:i], workers[i+1:]...)
		}
	}
	return workers
}

// AllowNewMissionsStart moves Postponed to Allowed; it is a no-op otherwise.
func (e *Enterprise[M]) AllowNewMissionsStart() {
	if e.admission.allow() {
		e.log().Info("[Enterprise] New missions allowed")
	}
}

// PostponeNewMissionsStart moves Allowed to Postponed; it is a no-op otherwise.
// Missions already claimed run to completion.
func (e *Enterprise[M]) PostponeNewMissionsStart() {
	if e.admission.postpone() {
		e.log().Info("[Enterprise] New missions postponed")
	}
}

// ForbidForeverNewMissionsStart is terminal and idempotent. It also stops
// the Missionner so the Enterprise closes down.
func (e *Enterprise[M]) ForbidForeverNewMissionsStart() {
	if !e.admission.forbid() {
		return
	}
	e.log().Info("[Enterprise] New missions forbidden")
	e.missionner.StopDispensing()
	e.wake()
}

// SetWishedWorkersCount changes the target worker count. A count below one
// is recorded as a failure, which closes the Enterprise down.
func (e *Enterprise[M]) SetWishedWorkersCount(n int) error {
	if n < 1 {
		err := fmt.Errorf("%s: %w: %d", e.opts.name, ErrBadWorkerCount, n)
		e.collectExceptions(err)
		return err
	}
	e.mu.Lock()
	e.wished = n
	e.cond.Broadcast()
	e.mu.Unlock()
	return nil
}

func (e *Enterprise[M]) WishedWorkersCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wished
}

func (e *Enterprise[M]) ActiveWorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Enterprise[M]) DismissedWorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dismissed)
}

// HiredWorkerCount is the number of workers hired since the start.
func (e *Enterprise[M]) HiredWorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hired
}

func (e *Enterprise[M]) DoneCount() int64 {
	e.doneMu.Lock()
	defer e.doneMu.Unlock()
	return e.doneCount
}

func (e *Enterprise[M]) ProducedCount() int64 {
	e.doneMu.Lock()
	defer e.doneMu.Unlock()
	return e.produced
}

// LastDone returns the most recently completed mission.
func (e *Enterprise[M]) LastDone() (M, bool) {
	e.doneMu.Lock()
	defer e.doneMu.Unlock()
	return e.lastDone, e.hasLast
}

// ElapsedTime only accrues while admission is Allowed, starting from the
// first claimed mission.
func (e *Enterprise[M]) ElapsedTime() time.Duration { return e.admission.elapsed() }

func (e *Enterprise[M]) Admission() Admission { return e.admission.get() }

func (e *Enterprise[M]) HasClosedDown() bool { return e.closedDown.Load() }

func (e *Enterprise[M]) Exceptions() []error { return e.failures.Errors() }

func (e *Enterprise[M]) HasExceptions() bool { return e.failures.Len() > 0 }

// Err joins every recorded exception.
func (e *Enterprise[M]) Err() error { return e.failures.Err() }

// ExpectedCount forwards to the Missionner.
func (e *Enterprise[M]) ExpectedCount(ctx context.Context, wait bool) int {
	return e.missionner.ExpectedCount(ctx, wait)
}

func (e *Enterprise[M]) Missionner() *Missionner[M] { return e.missionner }

// Snapshot gathers every observable value in one report.
func (e *Enterprise[M]) Snapshot() *metrics.EnterpriseMetrics {
	e.mu.Lock()
	wished, active, dismissed, hired := e.wished, len(e.active), len(e.dismissed), e.hired
	e.mu.Unlock()

	e.doneMu.Lock()
	done, produced := e.doneCount, e.produced
	e.doneMu.Unlock()

	em := &metrics.EnterpriseMetrics{
		Name:             e.opts.name,
		Admission:        e.Admission().String(),
		WishedWorkers:    wished,
		ActiveWorkers:    active,
		DismissedWorkers: dismissed,
		HiredWorkers:     hired,
		DoneCount:        done,
		ProducedCount:    produced,
		BufferedMissions: e.missionner.Buffered(),
		ExpectedCount:    e.missionner.ExpectedCount(context.Background(), false),
		Elapsed:          e.ElapsedTime(),
		ClosedDown:       e.HasClosedDown(),
	}
	for _, err := range e.Exceptions() {
		em.Exceptions = append(em.Exceptions, err.Error())
	}
	em.Finalize()
	return em
}
