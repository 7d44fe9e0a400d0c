package scheduler

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := NewScheduler(logging.NewNop())
	t.Cleanup(s.Stop)
	return s
}

func TestValidateExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * 1-5", false},
		{"@hourly", false},
		{"@every 30s", false},
		{"", true},
		{"* * *", true},
		{"61 * * * *", true},
		{"@fortnightly", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateExpr(tt.expr)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))
		})
	}
}

func TestAddAndRemoveJob(t *testing.T) {
	s := newTestScheduler(t)

	id, err := s.AddJob("nightly", "0 2 * * *", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	jobs := s.GetJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "nightly", jobs[0].Name)
	assert.Equal(t, "0 2 * * *", jobs[0].CronExpr)
	assert.True(t, jobs[0].NextRun.After(time.Now()))

	require.NoError(t, s.RemoveJob(id))
	assert.Empty(t, s.GetJobs())
	assert.Error(t, s.RemoveJob(id))
}

func TestAddJob_InvalidExpr(t *testing.T) {
	s := newTestScheduler(t)

	id, err := s.AddJob("broken", "not a schedule", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Empty(t, s.GetJobs())
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(t)

	failure := stderrors.New("smtp down")
	var calls int32
	id, err := s.AddJob("scan", "@hourly", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return failure
	})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(id))
	require.NoError(t, s.RunNow(id))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	jobs := s.GetJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].Runs)
	assert.ErrorIs(t, jobs[0].LastErr, failure)
	assert.False(t, jobs[0].Running)
	assert.False(t, jobs[0].LastRun.IsZero())

	assert.Error(t, s.RunNow(uuid.New()))
}

func TestRunNow_PanicClearsRunning(t *testing.T) {
	s := newTestScheduler(t)

	id, err := s.AddJob("panicky", "@hourly", func(context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	assert.Panics(t, func() { _ = s.RunNow(id) })
	assert.False(t, s.GetJobs()[0].Running)
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := newTestScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	id, err := s.AddJob("slow", "@hourly", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.RunNow(id)
	}()
	<-started

	// second invocation while the first is in flight
	require.NoError(t, s.RunNow(id))
	close(release)
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(logging.NewNop())

	fired := make(chan struct{}, 1)
	_, err := s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	s.Stop()
	s.Stop()
}

func TestStopCancelsJobContext(t *testing.T) {
	s := NewScheduler(logging.NewNop())

	entered := make(chan struct{})
	var sawCancel atomic.Bool
	id, err := s.AddJob("long", "@hourly", func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.RunNow(id)
	}()
	<-entered

	s.Stop()
	<-done
	assert.True(t, sawCancel.Load())
}
