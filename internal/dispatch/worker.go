package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"toolbox/internal/logger"
)

// Task executes missions for a Worker. Do returns the number of results the
// mission produced, which must not be negative.
//
// NewOne builds a fresh Task for a cloned Worker. It is called on the stem
// worker's Task while other clones are running.
type Task[M any] interface {
	Do(ctx context.Context, mission M) (int, error)
	NewOne() Task[M]
}

// Worker claims missions from its Enterprise and runs them one at a time
// until it is dismissed or no mission is left.
type Worker[M any] struct {
	Employee[M]
	task Task[M]

	mu          sync.Mutex
	dismissed   bool
	cancelClaim context.CancelFunc
	interruptFn context.CancelFunc
	done        chan struct{}
}

// NewWorker builds the stem worker of an Enterprise around task.
func NewWorker[M any](task Task[M]) *Worker[M] {
	w := &Worker[M]{
		task: task,
		done: make(chan struct{}),
	}
	w.init("w", nil)
	return w
}

// newOne clones w. The clone shares w's enterprise but gets its own name.
func (w *Worker[M]) newOne() (*Worker[M], error) {
	var task Task[M]
	err := protect(w.Name()+" clone", func() error {
		task = w.task.NewOne()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%s: %w", w.Name(), ErrNilClone)
	}

	clone := NewWorker(task)
	clone.enterprise = w.Enterprise()
	return clone, nil
}

// Dismiss asks the worker to stop once its current mission is done. A
// worker waiting for a mission gives up waiting.
func (w *Worker[M]) Dismiss() {
	w.mu.Lock()
	w.dismissed = true
	cancel := w.cancelClaim
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (w *Worker[M]) Dismissed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dismissed
}

// Done is closed once the worker's loop has exited.
func (w *Worker[M]) Done() <-chan struct{} { return w.done }

func (w *Worker[M]) interrupt() {
	w.mu.Lock()
	cancel := w.interruptFn
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (w *Worker[M]) start(ctx context.Context, cancel context.CancelFunc) {
	w.mu.Lock()
	w.interruptFn = cancel
	w.mu.Unlock()
	go w.run(ctx)
}

func (w *Worker[M]) run(ctx context.Context) {
	ent := w.Enterprise()
	log := logger.Log.WithField("worker", w.Name())

	defer close(w.done)
	defer ent.collectFinished(w)
	defer func() {
		if rec := recover(); rec != nil {
			w.ReportExceptions(fmt.Errorf("panic in %s: %v", w.Name(), rec))
		}
	}()
	defer func() {
		if err := finalize(ctx, w.Name(), w.task); err != nil {
			w.ReportExceptions(err)
		}
	}()

	if err := initialize(ctx, w.Name(), w.task); err != nil {
		w.ReportExceptions(err)
		return
	}
	ent.collectStarted(w)
	log.Debugf("[Worker %s] started", w.Name())

	for {
		claimCtx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		if w.dismissed {
			w.mu.Unlock()
			cancel()
			log.Debugf("[Worker %s] dismissed", w.Name())
			return
		}
		w.cancelClaim = cancel
		w.mu.Unlock()

		mission, ok := ent.GetNext(claimCtx)

		w.mu.Lock()
		w.cancelClaim = nil
		w.mu.Unlock()
		cancel()

		if !ok {
			log.Debugf("[Worker %s] no more missions", w.Name())
			return
		}
		if !w.execute(ctx, ent, mission, log) {
			return
		}
	}
}

func (w *Worker[M]) execute(ctx context.Context, ent *Enterprise[M], mission M, log *logrus.Entry) bool {
	var count int
	err := protect(w.Name()+" do", func() error {
		var err error
		count, err = w.task.Do(ctx, mission)
		return err
	})
	if err != nil {
		log.Warnf("[Worker %s] mission %v FAILED: %v", w.Name(), mission, err)
		w.ReportExceptions(fmt.Errorf("%s: mission %v: %w", w.Name(), mission, err))
		return false
	}
	if err := ent.collectDone(mission, count); err != nil {
		w.ReportExceptions(fmt.Errorf("%s: mission %v: %w", w.Name(), mission, err))
		return false
	}
	return true
}
