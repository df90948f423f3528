package realtime

import (
	"errors"
	"sync"
	"testing"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
)

func TestRegistryAddJob(t *testing.T) {
	r := NewDeliveryRegistry()
	job := &model.Job{ID: "j1", Status: model.JobStatusSubmitted}

	if err := r.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := r.AddJob(job); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate AddJob err = %v, want ErrAlreadyExists", err)
	}

	got, ok := r.Job("j1")
	if !ok {
		t.Fatal("job not found after AddJob")
	}
	// The registry hands out copies; mutating them must not leak back.
	got.Status = model.JobStatusFailed
	again, _ := r.Job("j1")
	if again.Status != model.JobStatusSubmitted {
		t.Fatalf("registry copy mutated: status %v", again.Status)
	}
}

func TestRegistryResolveIsExactlyOnce(t *testing.T) {
	r := NewDeliveryRegistry()
	if err := r.AddJob(&model.Job{ID: "j1"}); err != nil {
		t.Fatal(err)
	}

	if !r.Resolve("j1") {
		t.Fatal("first Resolve returned false")
	}
	if r.Resolve("j1") {
		t.Fatal("second Resolve returned true")
	}
	if !r.Resolved("j1") {
		t.Fatal("Resolved returned false after Resolve")
	}
	if _, ok := r.Job("j1"); ok {
		t.Fatal("resolved job still in active set")
	}
}

func TestRegistryResolveConcurrent(t *testing.T) {
	r := NewDeliveryRegistry()
	_ = r.AddJob(&model.Job{ID: "j1"})

	const racers = 32
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			if r.Resolve("j1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d goroutines won Resolve, want exactly 1", wins)
	}
}

func TestRegistrySessions(t *testing.T) {
	r := NewDeliveryRegistry()

	if err := r.OpenSession("j1", model.TransportPush); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := r.OpenSession("j1", model.TransportPoll); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second OpenSession err = %v, want ErrAlreadyExists", err)
	}

	r.SwitchTransport("j1", model.TransportPoll)
	s, ok := r.Session("j1")
	if !ok {
		t.Fatal("session not found")
	}
	if s.Transport != model.TransportPoll || s.Attempts != 1 {
		t.Fatalf("session after switch = %+v", s)
	}

	r.CloseSession("j1")
	if _, ok := r.Session("j1"); ok {
		t.Fatal("session still present after CloseSession")
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewDeliveryRegistry()
	_ = r.AddJob(&model.Job{ID: "j1"})
	r.Close()

	if err := r.AddJob(&model.Job{ID: "j2"}); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("AddJob after Close err = %v, want ErrSessionClosed", err)
	}
	if err := r.OpenSession("j2", model.TransportPush); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("OpenSession after Close err = %v, want ErrSessionClosed", err)
	}
	if jobs := r.ActiveJobs(); len(jobs) != 0 {
		t.Fatalf("ActiveJobs after Close = %d, want 0", len(jobs))
	}
}
