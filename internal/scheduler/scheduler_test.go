package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegate/pkg/logging"
)

func TestAddRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := New(logging.Discard())
	job := JobFunc{JobName: "sweep", Fn: func(context.Context) error { return nil }}

	require.NoError(t, s.Add("@every 1h", job))
	assert.ErrorContains(t, s.Add("@every 1h", job), "already registered")
	assert.Error(t, s.Add("not a spec", JobFunc{JobName: "other", Fn: job.Fn}))
}

func TestRunNowPropagatesErrors(t *testing.T) {
	s := New(logging.Discard())
	boom := errors.New("boom")
	require.NoError(t, s.Add("@every 1h", JobFunc{JobName: "fails", Fn: func(context.Context) error { return boom }}))

	assert.ErrorIs(t, s.Run("fails"), boom)
	assert.ErrorContains(t, s.Run("missing"), "not registered")
}

func TestScheduledJobRunsWithStartContext(t *testing.T) {
	s := New(logging.Discard())
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Add("@every 1s", JobFunc{JobName: "tick", Fn: func(jctx context.Context) error {
		_, hasDeadline := jctx.Deadline()
		assert.True(t, hasDeadline)
		runs.Add(1)
		return nil
	}}))
	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestJobPanicIsRecovered(t *testing.T) {
	s := New(logging.Discard())
	var after atomic.Bool
	require.NoError(t, s.Add("@every 1s", JobFunc{JobName: "panics", Fn: func(context.Context) error { panic("bad") }}))
	require.NoError(t, s.Add("@every 1s", JobFunc{JobName: "after", Fn: func(context.Context) error {
		after.Store(true)
		return nil
	}}))
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, after.Load, 3*time.Second, 50*time.Millisecond)
}
