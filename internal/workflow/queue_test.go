package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAgentQueues_SerializesPerAgent(t *testing.T) {
	q := newAgentQueues()
	var running int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Submit(context.Background(), "agent-a", func(ctx context.Context) {
				n := atomic.AddInt32(&running, 1)
				if n > atomic.LoadInt32(&maxObserved) {
					atomic.StoreInt32(&maxObserved, n)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
			})
		}()
	}
	wg.Wait()

	if maxObserved > 1 {
		t.Fatalf("expected serialized execution for one agent, saw %d concurrent", maxObserved)
	}
}

func TestAgentQueues_ParallelAcrossAgents(t *testing.T) {
	q := newAgentQueues()
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan string, 2)

	for _, agentID := range []string{"agent-a", "agent-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			q.Submit(context.Background(), id, func(ctx context.Context) {
				results <- id
			})
		}(agentID)
	}
	close(start)
	wg.Wait()
	close(results)

	count := 0
	for range results {
		count++
	}
	if count != 2 {
		t.Fatalf("expected both agents' tasks to run, got %d", count)
	}
}

func TestAgentQueues_ContextCancelledBeforeRun(t *testing.T) {
	q := newAgentQueues()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	q.Submit(ctx, "agent-a", func(ctx context.Context) {
		atomic.StoreInt32(&ran, 1)
	})
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("task ran despite pre-cancelled context")
	}
}
