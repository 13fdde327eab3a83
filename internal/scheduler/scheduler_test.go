package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/shopkeep/internal/clock"
)

var epoch = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	s, err := New(clk, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, clk
}

func TestNew_ValidatesDependencies(t *testing.T) {
	_, err := New(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = New(clock.NewFake(epoch), nil)
	assert.Error(t, err)
}

func TestAdvance_RunsJobsInDueOrderAtTheirOwnTime(t *testing.T) {
	s, clk := newTestScheduler(t)

	var order []string
	var seen []time.Time
	record := func(name string) Job {
		return func(now time.Time) {
			order = append(order, name)
			seen = append(seen, clk.Now())
		}
	}
	s.After("c", 3*time.Second, record("c"))
	s.After("a", time.Second, record("a"))
	s.After("b", 2*time.Second, record("b"))
	// Same due time as "b": insertion order wins.
	s.After("b2", 2*time.Second, record("b2"))

	ran, err := s.Advance(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, ran)
	assert.Equal(t, []string{"a", "b", "b2", "c"}, order)
	assert.Equal(t, epoch.Add(time.Second), seen[0])
	assert.Equal(t, epoch.Add(3*time.Second), seen[3])
	assert.Equal(t, epoch.Add(10*time.Second), clk.Now())
	assert.Zero(t, s.Pending())
}

func TestEvery_RepeatsAndCancel(t *testing.T) {
	s, _ := newTestScheduler(t)

	var count int
	h := s.Every("tick", time.Second, func(time.Time) { count++ })

	_, err := s.Advance(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	s.Cancel(h)
	_, err = s.Advance(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Zero(t, s.Pending())

	// Cancelling twice is harmless.
	s.Cancel(h)
}

func TestJobsCanScheduleFollowUps(t *testing.T) {
	s, _ := newTestScheduler(t)

	var steps []int
	var next func(i int) Job
	next = func(i int) Job {
		return func(time.Time) {
			steps = append(steps, i)
			if i < 3 {
				s.After("step", time.Second, next(i+1))
			}
		}
	}
	s.After("step", time.Second, next(0))

	_, err := s.Advance(2500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, steps)

	_, err = s.Advance(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, steps)
}

func TestPanickingJobDoesNotStopTheScheduler(t *testing.T) {
	s, _ := newTestScheduler(t)

	var ran bool
	s.After("boom", time.Second, func(time.Time) { panic("boom") })
	s.After("after", 2*time.Second, func(time.Time) { ran = true })

	_, err := s.Advance(3 * time.Second)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestAdvance_RequiresSettableClock(t *testing.T) {
	s, err := New(clock.Real{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = s.Advance(time.Second)
	assert.ErrorIs(t, err, ErrNotSettable)
}

func TestRun_StopsOnCancelWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := New(clock.Real{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var fired atomic.Int32
	s.After("now", 0, func(time.Time) { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A second loop on the same scheduler is rejected while the first is live.
	assert.ErrorIs(t, s.Run(ctx, time.Millisecond), ErrAlreadyRunning)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
