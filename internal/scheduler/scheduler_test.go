package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

func TestScheduler_SerializesPerKey(t *testing.T) {
	s := New(8)
	s.Start(context.Background())
	defer s.Stop()

	key := sessions.ConversationKey("telegram:1")
	const n = 20

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		err := s.Run(key, func(ctx context.Context) error {
			defer wg.Done()
			// Randomized duration: completion order must still match
			// submission order for a single key.
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Run(%d): %v", i, err)
		}
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("task %d completed at position %d: order %v", got, i, order)
		}
	}
}

func TestScheduler_KeysRunConcurrently(t *testing.T) {
	s := New(8)
	s.Start(context.Background())
	defer s.Stop()

	release := make(chan struct{})
	started := make(chan sessions.ConversationKey, 2)

	for _, key := range []sessions.ConversationKey{"telegram:1", "telegram:2"} {
		key := key
		if err := s.Run(key, func(ctx context.Context) error {
			started <- key
			<-release
			return nil
		}); err != nil {
			t.Fatalf("Run(%s): %v", key, err)
		}
	}

	// Both tasks must start even though neither has finished: a slow
	// conversation must not stall others.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("tasks for distinct keys did not run concurrently")
		}
	}
	close(release)
}

func TestScheduler_TaskErrorDoesNotBlockLane(t *testing.T) {
	s := New(2)
	s.Start(context.Background())
	defer s.Stop()

	key := sessions.ConversationKey("telegram:1")
	done := make(chan struct{})

	if err := s.Run(key, func(ctx context.Context) error {
		return fmt.Errorf("boom")
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Run(key, func(ctx context.Context) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task after a failing task never ran")
	}
}

func TestScheduler_RunBeforeStart(t *testing.T) {
	s := New(1)
	if err := s.Run("telegram:1", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("Run before Start should fail")
	}
}

func TestScheduler_LaneFull(t *testing.T) {
	s := New(1)
	s.Start(context.Background())
	defer s.Stop()

	blockerStarted := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	key := sessions.ConversationKey("telegram:1")
	s.Run(key, func(ctx context.Context) error {
		close(blockerStarted)
		<-release
		return nil
	})
	<-blockerStarted

	filled := 0
	for i := 0; i < defaultLaneDepth+1; i++ {
		if err := s.Run(key, func(ctx context.Context) error { return nil }); err != nil {
			break
		}
		filled++
	}
	if filled > defaultLaneDepth {
		t.Errorf("lane accepted %d queued tasks, expected at most %d", filled, defaultLaneDepth)
	}
}
