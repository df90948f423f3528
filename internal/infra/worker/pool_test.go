package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"collab-realtime/internal/infra/logging"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(2, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var mu sync.Mutex
	ran := 0
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		err := p.Submit(func(context.Context) error {
			mu.Lock()
			ran++
			if ran == 8 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not all run")
	}
	p.Stop()
}

func TestPoolRejectsNilTask(t *testing.T) {
	p := NewPool(1, logging.Nop())
	if err := p.Submit(nil); err == nil {
		t.Fatal("nil task accepted")
	}
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	// Not started: nothing drains the queue, so it fills at capacity.
	p := NewPool(1, logging.Nop())

	task := func(context.Context) error { return nil }
	var rejected bool
	for i := 0; i < 16; i++ {
		if err := p.Submit(task); err != nil {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Fatal("saturated pool kept accepting tasks")
	}
}
