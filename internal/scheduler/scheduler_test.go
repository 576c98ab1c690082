package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Validation(t *testing.T) {
	ok := func(context.Context) error { return nil }
	tests := []struct {
		name string
		task Task
	}{
		{"no name", Task{Period: time.Second, Run: ok}},
		{"no run", Task{Name: "x", Period: time.Second}},
		{"zero period", Task{Name: "x", Run: ok}},
		{"negative backoff", Task{Name: "x", Period: time.Second, ErrorBackoff: -1, Run: ok}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(quietLogger(), tt.task)
			assert.Error(t, err)
		})
	}

	_, err := New(quietLogger(), Task{Name: "x", Period: time.Second, Run: ok}, Task{Name: "x", Period: time.Second, Run: ok})
	assert.Error(t, err)
}

func TestNew_DefaultBackoff(t *testing.T) {
	s, err := New(quietLogger(), Task{Name: "x", Period: time.Second, Run: func(context.Context) error { return nil }})
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.tasks[0].ErrorBackoff)
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	var n atomic.Int64
	s, err := New(quietLogger(), Task{
		Name:      "tick",
		Period:    10 * time.Millisecond,
		Immediate: true,
		Run: func(context.Context) error {
			n.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop(context.Background())

	st := s.Status()["tick"]
	assert.GreaterOrEqual(t, st.Runs, int64(3))
	assert.Zero(t, st.Failures)
}

func TestScheduler_FailureDoesNotStopLoopOrOthers(t *testing.T) {
	var failing, healthy atomic.Int64
	s, err := New(quietLogger(),
		Task{
			Name:         "failing",
			Period:       5 * time.Millisecond,
			ErrorBackoff: 10 * time.Millisecond,
			Immediate:    true,
			Run: func(context.Context) error {
				failing.Add(1)
				return fmt.Errorf("collect: %w", os.ErrDeadlineExceeded)
			},
		},
		Task{
			Name:      "panicking",
			Period:    5 * time.Millisecond,
			Immediate: true,
			Run: func(context.Context) error {
				panic("collector exploded")
			},
		},
		Task{
			Name:      "healthy",
			Period:    5 * time.Millisecond,
			Immediate: true,
			Run: func(context.Context) error {
				healthy.Add(1)
				return nil
			},
		},
	)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return failing.Load() >= 3 && healthy.Load() >= 3 && s.Status()["panicking"].Failures >= 3
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop(context.Background())

	st := s.Status()
	assert.Equal(t, st["failing"].Runs, st["failing"].Failures)
	assert.Contains(t, st["failing"].LastError, "collect")
	assert.Contains(t, st["panicking"].LastError, "collector exploded")
	assert.Zero(t, st["healthy"].Failures)
}

func TestScheduler_BackoffAfterFailure(t *testing.T) {
	var calls atomic.Int64
	s, err := New(quietLogger(), Task{
		Name:         "backoff",
		Period:       5 * time.Millisecond,
		ErrorBackoff: time.Hour,
		Immediate:    true,
		Run: func(context.Context) error {
			calls.Add(1)
			return errors.New("store unavailable")
		},
	})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	s.Stop(context.Background())

	assert.Equal(t, int64(1), calls.Load())
}

func TestScheduler_NotImmediateWaitsForPeriod(t *testing.T) {
	var calls atomic.Int64
	s, err := New(quietLogger(), Task{
		Name:   "delayed",
		Period: time.Hour,
		Run: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop(context.Background())

	assert.Zero(t, calls.Load())
}

func TestScheduler_RunReturnsOnCancel(t *testing.T) {
	s, err := New(quietLogger(), Task{
		Name:      "blocking",
		Period:    time.Millisecond,
		Immediate: true,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, err := New(quietLogger())
	require.NoError(t, err)
	assert.NotPanics(t, func() { s.Stop(context.Background()) })
}

func TestErrorType(t *testing.T) {
	err := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", os.ErrDeadlineExceeded))
	assert.Equal(t, fmt.Sprintf("%T", os.ErrDeadlineExceeded), errorType(err))
	assert.Equal(t, "*errors.errorString", errorType(errors.New("plain")))
	assert.Equal(t, "*scheduler.PanicError", errorType(&PanicError{Value: 1}))
}
