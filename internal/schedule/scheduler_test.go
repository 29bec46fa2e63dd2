package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/sadjad6/personal-knowledge-agent/internal/pkg/errors"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcJob) Name() string { return f.name }

func (f funcJob) Run(ctx context.Context) error { return f.fn(ctx) }

func TestAddJobValidation(t *testing.T) {
	s := NewCronScheduler()
	noop := funcJob{name: "noop", fn: func(context.Context) error { return nil }}
	require.Error(t, s.AddJob(noop, "not a cron"))
	require.NoError(t, s.AddJob(noop, "0 20 * * *"))
	require.ErrorIs(t, s.AddJob(noop, "0 21 * * *"), appErr.ErrConflict)
	require.NoError(t, s.AddJob(funcJob{name: "hourly", fn: noop.fn}, "@hourly"))

	entries := s.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "hourly", entries[0].Name)
	require.Equal(t, "0 20 * * *", entries[1].Spec)
	require.Nil(t, entries[1].Prev)
}

func TestTrigger(t *testing.T) {
	s := NewCronScheduler()
	calls := 0
	require.NoError(t, s.AddJob(funcJob{name: "count", fn: func(context.Context) error {
		calls++
		return nil
	}}, "0 20 * * *"))
	require.NoError(t, s.AddJob(funcJob{name: "fail", fn: func(context.Context) error {
		return errors.New("boom")
	}}, "0 20 * * *"))

	require.NoError(t, s.Trigger(context.Background(), "count"))
	require.Equal(t, 1, calls)
	require.EqualError(t, s.Trigger(context.Background(), "fail"), "boom")
	require.ErrorIs(t, s.Trigger(context.Background(), "missing"), appErr.ErrNotFound)

	entries := s.Entries()
	require.NotNil(t, entries[0].Prev)
	require.Equal(t, "boom", entries[1].LastError)
	require.Empty(t, entries[0].LastError)
}

func TestTriggerWhileRunning(t *testing.T) {
	s := NewCronScheduler()
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.AddJob(funcJob{name: "slow", fn: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}, "0 20 * * *"))

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "slow") }()
	<-started
	require.True(t, s.Entries()[0].Running)
	require.ErrorIs(t, s.Trigger(context.Background(), "slow"), appErr.ErrJobRunning)
	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	require.False(t, s.Entries()[0].Running)
}

func TestStartStop(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(funcJob{name: "noop", fn: func(context.Context) error { return nil }}, "0 20 * * *"))
	s.Start(context.Background())
	require.NotNil(t, s.Entries()[0].Next)
	s.Stop()
}
