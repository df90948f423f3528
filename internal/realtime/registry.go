package realtime

import (
	"sync"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
)

// DeliveryRegistry holds the per-session delivery state that used to live in
// package globals: the active job table, the completed-id set and the open
// delivery sessions. It is created at session start, passed to every
// component, and closed at disconnect or logout.
//
// Single-writer-per-key discipline: only the JobManager mutates job status,
// only the ScopeGuard holds the active conversation id. The mutex here makes
// that safe when callers run on multiple goroutines.
type DeliveryRegistry struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	sessions  map[string]*model.DeliverySession
	completed map[string]struct{}
	closed    bool
}

func NewDeliveryRegistry() *DeliveryRegistry {
	return &DeliveryRegistry{
		jobs:      make(map[string]*model.Job),
		sessions:  make(map[string]*model.DeliverySession),
		completed: make(map[string]struct{}),
	}
}

func (r *DeliveryRegistry) AddJob(job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrSessionClosed
	}
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *DeliveryRegistry) Job(jobID string) (*model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// UpdateStatus mutates an active job in place. Terminal transitions go
// through Resolve instead.
func (r *DeliveryRegistry) UpdateStatus(jobID string, status model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		j.Status = status
		j.UpdatedAt = time.Now()
	}
}

// Resolve claims terminal delivery for a job: it removes the job from the
// active set and records the id in the completed set. The second and every
// later call for the same id returns false, which is what makes duplicate
// push+poll resolutions harmless.
func (r *DeliveryRegistry) Resolve(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.completed[jobID]; done {
		return false
	}
	r.completed[jobID] = struct{}{}
	delete(r.jobs, jobID)
	delete(r.sessions, jobID)
	return true
}

// Resolved reports whether a terminal event was already delivered for jobID.
func (r *DeliveryRegistry) Resolved(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, done := r.completed[jobID]
	return done
}

// OpenSession records the delivery session for a job. At most one session
// may exist per job.
func (r *DeliveryRegistry) OpenSession(jobID string, transport model.Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.ErrSessionClosed
	}
	if _, ok := r.sessions[jobID]; ok {
		return domain.ErrAlreadyExists
	}
	r.sessions[jobID] = &model.DeliverySession{
		JobID:     jobID,
		Transport: transport,
		CreatedAt: time.Now(),
	}
	return nil
}

// SwitchTransport flips an open session to another transport and bumps the
// attempt counter.
func (r *DeliveryRegistry) SwitchTransport(jobID string, transport model.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[jobID]; ok {
		s.Transport = transport
		s.Attempts++
	}
}

func (r *DeliveryRegistry) Session(jobID string) (*model.DeliverySession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[jobID]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

func (r *DeliveryRegistry) CloseSession(jobID string) {
	r.mu.Lock()
	delete(r.sessions, jobID)
	r.mu.Unlock()
}

// ActiveJobs returns copies of all unresolved jobs.
func (r *DeliveryRegistry) ActiveJobs() []*model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out
}

// Close tears the registry down. Further AddJob/OpenSession calls fail with
// domain.ErrSessionClosed.
func (r *DeliveryRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	r.jobs = make(map[string]*model.Job)
	r.sessions = make(map[string]*model.DeliverySession)
	r.mu.Unlock()
}
