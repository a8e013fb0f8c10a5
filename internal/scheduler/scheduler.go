// Package scheduler serializes work per conversation key.
//
// Conversation-scoped state (history, pairing checks, session overrides)
// would race if two events for the same chat ran concurrently, while one
// slow conversation must not stall the rest. Each key gets its own FIFO
// lane drained by a dedicated goroutine; a weighted semaphore bounds total
// concurrency across lanes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

// Task is one unit of serialized work. Its error is logged and isolated:
// a failing task never blocks later tasks on the same key.
type Task func(ctx context.Context) error

const defaultLaneDepth = 100

// Scheduler guarantees at most one in-flight task per conversation key,
// in submission order, while different keys run concurrently up to the
// global bound.
type Scheduler struct {
	lanes  map[sessions.ConversationKey]chan Task
	sem    *semaphore.Weighted
	active atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a Scheduler allowing up to maxConcurrent tasks to execute
// simultaneously across all lanes.
func New(maxConcurrent int64) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Scheduler{
		lanes: make(map[sessions.ConversationKey]chan Task),
		sem:   semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the scheduler's context. Must be called before Run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Stop cancels the scheduler context, closes all lanes, and waits for
// in-flight tasks to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	for _, lane := range s.lanes {
		close(lane)
	}
	s.lanes = make(map[sessions.ConversationKey]chan Task)
	s.mu.Unlock()
	s.wg.Wait()
}

// Run schedules task under key, creating the key's lane (and its drain
// goroutine) on first use. Returns an error when the lane's buffer is full.
func (s *Scheduler) Run(key sessions.ConversationKey, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return fmt.Errorf("scheduler not started")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("scheduler stopped")
	}

	lane, exists := s.lanes[key]
	if !exists {
		lane = make(chan Task, defaultLaneDepth)
		s.lanes[key] = lane
		s.wg.Add(1)
		go s.drainLane(key, lane)
	}

	select {
	case lane <- task:
		return nil
	default:
		return fmt.Errorf("lane full for conversation %s", key)
	}
}

// drainLane runs a single lane, acquiring a semaphore slot before running
// each task synchronously. Strict FIFO within the lane; the semaphore only
// limits cross-lane parallelism.
func (s *Scheduler) drainLane(key sessions.ConversationKey, lane chan Task) {
	defer s.wg.Done()
	for {
		select {
		case task, ok := <-lane:
			if !ok {
				return
			}
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return
			}
			s.active.Add(1)
			if err := task(s.ctx); err != nil {
				slog.Error("scheduled task failed", "conversation", string(key), "error", err)
			}
			s.active.Add(-1)
			s.sem.Release(1)
		case <-s.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no tasks are actively running, or the timeout
// expires. Returns true if idle, false if timed out.
func (s *Scheduler) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if s.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
