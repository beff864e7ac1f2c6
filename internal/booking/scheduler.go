package booking

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner executes one task to completion. The scheduler guarantees at most
// one Run call is in flight at any time.
type Runner interface {
	Run(ctx context.Context, task Task) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task Task) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, task Task) (Result, error) { return f(ctx, task) }

// Scheduler serializes booking tasks through a single worker goroutine.
// Tasks are processed in priority order with submission order as tie-break;
// the worker never terminates because of a task failure.
type Scheduler struct {
	runner Runner
	poll   time.Duration
	logger zerolog.Logger

	mu    sync.Mutex
	queue entryQueue
	seq   uint64
	wake  chan struct{}

	lifeMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

// NewScheduler builds a stopped scheduler. poll bounds how long the idle
// worker sleeps before re-checking the stop signal.
func NewScheduler(runner Runner, poll time.Duration, logger zerolog.Logger) *Scheduler {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Scheduler{
		runner: runner,
		poll:   poll,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Submit enqueues the task and returns its future without blocking beyond
// the enqueue itself. The caller suspends only on Future.Wait.
func (s *Scheduler) Submit(task Task) *Future {
	f := newFuture()
	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, &entry{priority: task.Priority, seq: s.seq, task: task, future: f})
	seq := s.seq
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	s.logger.Debug().
		Str("task", task.ID.String()).
		Int("priority", task.Priority).
		Uint64("seq", seq).
		Str("description", task.Description).
		Msg("task submitted")
	return f
}

// Start launches the worker if it is not already running.
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
			// previous worker exited on its own; fall through and restart
		default:
			return
		}
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.worker(s.stop, s.done)
	s.logger.Debug().Msg("worker started")
}

// Stop signals the worker to exit after its current item and waits for it.
// It is idempotent and never interrupts an in-flight task.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.done == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
	s.logger.Debug().Msg("worker stopped")
}

func (s *Scheduler) worker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		e := s.pop()
		if e == nil {
			select {
			case <-stop:
				return
			case <-s.wake:
			case <-time.After(s.poll):
			}
			continue
		}

		if e.future.Done() {
			s.logger.Debug().Str("task", e.task.ID.String()).Msg("skipping resolved task")
			continue
		}

		s.logger.Info().Str("task", e.task.ID.String()).Str("description", e.task.Description).Msg("task started")
		res := s.process(e.task)
		e.future.resolve(res)
		s.logger.Info().
			Str("task", e.task.ID.String()).
			Str("state", string(res.State)).
			Str("message", res.Message).
			Msg("task finished")
	}
}

func (s *Scheduler) pop() *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&s.queue).(*entry)
}

// process converts every runner error and panic into a failed Result so a
// broken task cannot take the worker down.
func (s *Scheduler) process(task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed("Не удалось обработать задачу «%s»: %v", task.Description, r)
		}
	}()
	result, err := s.runner.Run(context.Background(), task)
	if err != nil {
		return Failed("Не удалось обработать задачу «%s»: %v", task.Description, err)
	}
	return result
}
