// Package scheduler runs independent periodic tasks. A failing or panicking
// iteration is logged and retried after the task's backoff; it never stops
// the task or touches the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one periodic unit of work.
type Task struct {
	Name string
	// Period is the wait after a successful iteration.
	Period time.Duration
	// ErrorBackoff is the wait after a failed iteration. Defaults to Period.
	ErrorBackoff time.Duration
	// Immediate runs the first iteration at start instead of after Period.
	Immediate bool
	Run       func(ctx context.Context) error
}

// TaskStatus is a point-in-time view of a task's history.
type TaskStatus struct {
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Scheduler owns a fixed set of tasks.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger

	mu     sync.Mutex
	status map[string]*TaskStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// New validates the tasks and builds a scheduler. Invalid tasks are a
// programmer error and are reported here rather than at run time.
func New(logger *slog.Logger, tasks ...Task) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		logger: logger,
		status: make(map[string]*TaskStatus, len(tasks)),
	}
	for _, t := range tasks {
		switch {
		case t.Name == "":
			return nil, errors.New("scheduler: task name required")
		case t.Run == nil:
			return nil, fmt.Errorf("scheduler: task %s has no Run func", t.Name)
		case t.Period <= 0:
			return nil, fmt.Errorf("scheduler: task %s period must be positive", t.Name)
		case t.ErrorBackoff < 0:
			return nil, fmt.Errorf("scheduler: task %s backoff must not be negative", t.Name)
		}
		if _, dup := s.status[t.Name]; dup {
			return nil, fmt.Errorf("scheduler: duplicate task %s", t.Name)
		}
		if t.ErrorBackoff == 0 {
			t.ErrorBackoff = t.Period
		}
		s.tasks = append(s.tasks, t)
		s.status[t.Name] = &TaskStatus{}
	}
	return s, nil
}

// Run blocks, running every task on its own goroutine until ctx is
// cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			s.loop(ctx, t)
			return nil
		})
	}
	return g.Wait()
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.logger.Info("scheduler started", "tasks", len(s.tasks))
		_ = s.Run(ctx)
	}()
}

// Stop cancels all tasks and waits for in-progress iterations to return.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancel == nil {
		return
	}
	s.cancel()

	select {
	case <-s.done:
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// Status returns a copy of every task's status keyed by name.
func (s *Scheduler) Status() map[string]TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TaskStatus, len(s.status))
	for name, st := range s.status {
		out[name] = *st
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	delay := t.Period
	if t.Immediate {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		next := t.Period
		err := s.runOnce(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("task iteration failed",
				"task", t.Name,
				"errorType", errorType(err),
				"error", err,
				"retryIn", t.ErrorBackoff,
			)
			next = t.ErrorBackoff
		}
		s.record(t.Name, err)
		timer.Reset(next)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return t.Run(ctx)
}

func (s *Scheduler) record(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	st.Runs++
	st.LastRun = time.Now()
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// errorType names the innermost error in a wrap chain.
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
