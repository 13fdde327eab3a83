// internal/scheduler/scheduler.go
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/clock"
)

// ErrNotSettable is returned by Advance when the scheduler runs on a clock that
// cannot be moved by hand (the wall clock).
var ErrNotSettable = errors.New("scheduler clock cannot be advanced manually")

// ErrAlreadyRunning is returned when Run is called on a scheduler that is already looping.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Job is a unit of scheduled work. It receives the scheduled time it fired at.
type Job func(now time.Time)

// Handle identifies a scheduled job so it can be cancelled.
type Handle uint64

type entry struct {
	id       Handle
	seq      uint64
	name     string
	due      time.Time
	interval time.Duration
	fn       Job
	index    int
}

// Scheduler is the single logical scheduler that drives every automation module.
// Jobs execute one at a time, in due-time order (FIFO for equal due times), on the
// goroutine calling RunDue, Advance or Run. Jobs may schedule further jobs.
type Scheduler struct {
	clk    clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	queue   jobQueue
	byID    map[Handle]*entry
	nextID  Handle
	nextSeq uint64

	// runLock serialises job execution between Run and Advance callers.
	runLock sync.Mutex

	stateLock sync.Mutex
	isRunning bool
}

// New creates a scheduler bound to clk.
func New(clk clock.Clock, logger *zap.Logger) (*Scheduler, error) {
	if clk == nil {
		return nil, errors.New("clock cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Scheduler{
		clk:    clk,
		logger: logger.Named("scheduler"),
		byID:   make(map[Handle]*entry),
	}, nil
}

// Now reports the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clk.Now()
}

// After schedules fn to run once, delay from now. A non-positive delay runs it on
// the next pass.
func (s *Scheduler) After(name string, delay time.Duration, fn Job) Handle {
	if delay < 0 {
		delay = 0
	}
	return s.push(name, s.clk.Now().Add(delay), 0, fn)
}

// Every schedules fn to run each interval, starting one interval from now.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) Handle {
	if interval <= 0 {
		interval = time.Second
	}
	return s.push(name, s.clk.Now().Add(interval), interval, fn)
}

// Cancel removes a pending job. Cancelling an unknown or finished job is a no-op.
func (s *Scheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[h]
	if !ok {
		return
	}
	delete(s.byID, h)
	if e.index >= 0 {
		heap.Remove(&s.queue, e.index)
	}
}

// Pending returns the number of scheduled jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// RunDue executes every job due at or before the current time and returns how many ran.
func (s *Scheduler) RunDue() int {
	s.runLock.Lock()
	defer s.runLock.Unlock()
	return s.runUntil(s.clk.Now(), nil)
}

// Advance steps simulated time forward by d, running each job at its own due time.
// It requires a settable clock.
func (s *Scheduler) Advance(d time.Duration) (int, error) {
	settable, ok := s.clk.(clock.Settable)
	if !ok {
		return 0, ErrNotSettable
	}
	s.runLock.Lock()
	defer s.runLock.Unlock()

	target := s.clk.Now().Add(d)
	ran := s.runUntil(target, settable)
	settable.Set(target)
	return ran, nil
}

// Run drives the scheduler against the wall clock until ctx is cancelled, polling
// for due jobs every resolution.
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) error {
	s.stateLock.Lock()
	if s.isRunning {
		s.stateLock.Unlock()
		return ErrAlreadyRunning
	}
	s.isRunning = true
	s.stateLock.Unlock()

	defer func() {
		s.stateLock.Lock()
		s.isRunning = false
		s.stateLock.Unlock()
	}()

	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	s.logger.Info("Scheduler loop started", zap.Duration("resolution", resolution))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler loop stopping", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			s.RunDue()
		}
	}
}

func (s *Scheduler) push(name string, due time.Time, interval time.Duration, fn Job) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.nextSeq++
	e := &entry{
		id:       s.nextID,
		seq:      s.nextSeq,
		name:     name,
		due:      due,
		interval: interval,
		fn:       fn,
	}
	heap.Push(&s.queue, e)
	s.byID[e.id] = e
	return e.id
}

// popDue removes and returns the earliest job due at or before limit.
func (s *Scheduler) popDue(limit time.Time) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return nil
	}
	next := s.queue[0]
	if next.due.After(limit) {
		return nil
	}
	heap.Pop(&s.queue)
	if next.interval > 0 {
		s.nextSeq++
		next.seq = s.nextSeq
		next.due = next.due.Add(next.interval)
		heap.Push(&s.queue, next)
	} else {
		delete(s.byID, next.id)
	}
	return next
}

func (s *Scheduler) runUntil(limit time.Time, settable clock.Settable) int {
	ran := 0
	for {
		e := s.popDue(limit)
		if e == nil {
			return ran
		}
		firedAt := e.due
		if e.interval > 0 {
			firedAt = e.due.Add(-e.interval)
		}
		if settable != nil {
			settable.Set(firedAt)
		}
		s.execute(e, firedAt)
		ran++
	}
}

func (s *Scheduler) execute(e *entry, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in scheduled job",
				zap.String("job", e.name),
				zap.Any("panic_value", r),
			)
		}
	}()
	e.fn(at)
}

// jobQueue orders entries by due time, then by insertion sequence.
type jobQueue []*entry

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
