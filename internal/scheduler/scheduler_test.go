package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndFire(t *testing.T) {
	s := New(nil)
	var calls int32

	err := s.Add("job-1", "agents/a.agentuse", "1s", func(ctx context.Context, agentPath string) Result {
		atomic.AddInt32(&calls, 1)
		return Result{Success: true}
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, 3*time.Second, 50*time.Millisecond)

	sched, ok := s.Get("job-1")
	require.True(t, ok)
	require.NotNil(t, sched.LastRun)
	require.NotNil(t, sched.LastResult)
	assert.True(t, sched.LastResult.Success)
}

func TestAddRejectsBadExpression(t *testing.T) {
	s := New(nil)
	err := s.Add("bad", "agents/a.agentuse", "not a schedule", func(ctx context.Context, agentPath string) Result {
		return Result{}
	})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add("job-1", "a.agentuse", "1h", func(ctx context.Context, agentPath string) Result {
		return Result{Success: true}
	}))
	s.Remove("job-1")
	_, ok := s.Get("job-1")
	assert.False(t, ok)
}
