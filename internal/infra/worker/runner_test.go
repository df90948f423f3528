package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/logging"
	"collab-realtime/internal/realtime/wire"
)

type stubJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newStubJobRepo(jobs ...*model.Job) *stubJobRepo {
	r := &stubJobRepo{jobs: make(map[string]*model.Job)}
	for _, j := range jobs {
		cp := *j
		r.jobs[j.ID] = &cp
	}
	return r
}

func (r *stubJobRepo) Save(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *stubJobRepo) FindByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *stubJobRepo) FetchAndMarkRunning(_ context.Context) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Status == model.JobStatusQueued {
			j.Status = model.JobStatusRunning
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *stubJobRepo) ListOngoingByConversation(context.Context, string) ([]*model.Job, error) {
	return nil, nil
}

func (r *stubJobRepo) ListHistory(context.Context, int) ([]*model.Job, error) { return nil, nil }

func (r *stubJobRepo) MarkCancelled(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status.Terminal() {
		return false, nil
	}
	j.Status = model.JobStatusCancelled
	return true, nil
}

type stubAI struct {
	result string
	err    error
	// onComplete runs inside Complete, before it returns; tests use it to
	// race a cancel against the computation.
	onComplete func()

	mu      sync.Mutex
	counted []string
}

func (a *stubAI) Complete(context.Context, string, string) (string, error) {
	if a.onComplete != nil {
		a.onComplete()
	}
	return a.result, a.err
}

func (a *stubAI) CountTokens(_ context.Context, _, query string) (int, error) {
	a.mu.Lock()
	a.counted = append(a.counted, query)
	a.mu.Unlock()
	return len(query) / 4, nil
}

func (a *stubAI) countedQueries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.counted...)
}

type capturingBus struct {
	mu     sync.Mutex
	frames map[string][]*wire.Frame
}

func newCapturingBus() *capturingBus { return &capturingBus{frames: make(map[string][]*wire.Frame)} }

func (b *capturingBus) Publish(subject string, f *wire.Frame) error {
	b.mu.Lock()
	b.frames[subject] = append(b.frames[subject], f)
	b.mu.Unlock()
	return nil
}

func (b *capturingBus) bySubject(subject string) []*wire.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames[subject]
}

func TestRunnerCompletesJob(t *testing.T) {
	repo := newStubJobRepo(&model.Job{ID: "j1", ConversationID: "conv-1", Query: "q", Status: model.JobStatusQueued})
	b := newCapturingBus()
	ai := &stubAI{result: "answer"}
	r := NewRunner(repo, ai, b, "gpt-4o-mini", logging.Nop())

	r.processOne(context.Background())

	if got := ai.countedQueries(); len(got) != 1 || got[0] != "q" {
		t.Fatalf("prompt token counting saw %v, want the job query", got)
	}

	job, err := repo.FindByID(context.Background(), "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusCompleted || job.Result != "answer" {
		t.Fatalf("job = %+v", job)
	}

	jobFrames := b.bySubject("jobs.j1")
	if len(jobFrames) != 2 {
		t.Fatalf("job subject frames = %d, want progress + terminal", len(jobFrames))
	}
	if jobFrames[0].Type != wire.TypeJobProgress || jobFrames[1].Type != wire.TypeJobCompleted {
		t.Fatalf("frames = %s, %s", jobFrames[0].Type, jobFrames[1].Type)
	}
	if jobFrames[1].Result != "answer" {
		t.Fatalf("terminal result = %q", jobFrames[1].Result)
	}

	convFrames := b.bySubject("jobs.conv.conv-1")
	if len(convFrames) != 1 || convFrames[0].Type != wire.TypeBackgroundJobCompleted {
		t.Fatalf("conversation frames = %+v", convFrames)
	}
}

func TestRunnerPublishesJobError(t *testing.T) {
	repo := newStubJobRepo(&model.Job{ID: "j1", ConversationID: "conv-1", Status: model.JobStatusQueued})
	b := newCapturingBus()
	r := NewRunner(repo, &stubAI{err: errors.New("model unavailable")}, b, "gpt-4o-mini", logging.Nop())

	r.processOne(context.Background())

	job, _ := repo.FindByID(context.Background(), "j1")
	if job.Status != model.JobStatusFailed || job.LastError != "model unavailable" {
		t.Fatalf("job = %+v", job)
	}

	frames := b.bySubject("jobs.j1")
	last := frames[len(frames)-1]
	if last.Type != wire.TypeJobError || last.Error != "model unavailable" {
		t.Fatalf("terminal frame = %+v", last)
	}
}

func TestRunnerDropsResultWhenCancelledMidRun(t *testing.T) {
	repo := newStubJobRepo(&model.Job{ID: "j1", ConversationID: "conv-1", Status: model.JobStatusQueued})
	b := newCapturingBus()

	ai := &stubAI{result: "too late"}
	ai.onComplete = func() {
		if _, err := repo.MarkCancelled(context.Background(), "j1"); err != nil {
			t.Errorf("MarkCancelled: %v", err)
		}
	}
	r := NewRunner(repo, ai, b, "gpt-4o-mini", logging.Nop())

	r.processOne(context.Background())

	job, _ := repo.FindByID(context.Background(), "j1")
	if job.Status != model.JobStatusCancelled {
		t.Fatalf("status = %v, want cancelled kept", job.Status)
	}
	for _, f := range b.bySubject("jobs.j1") {
		if f.Type == wire.TypeJobCompleted {
			t.Fatal("terminal completion published for a cancelled job")
		}
	}
}

func TestRunnerNoQueuedJobsIsQuiet(t *testing.T) {
	repo := newStubJobRepo()
	b := newCapturingBus()
	r := NewRunner(repo, &stubAI{}, b, "gpt-4o-mini", logging.Nop())

	r.processOne(context.Background())

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) != 0 {
		t.Fatalf("published frames with an empty queue: %v", b.frames)
	}
}
