package realtime

import (
	"context"
	"sync"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/realtime/wire"
)

// ---- Fakes ----

// fakeAPI is an in-memory JobAPI. Tests mutate the stored jobs to simulate
// server-side progress.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	jobs     map[string]*model.Job
	getCalls int
	errOnGet error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{jobs: make(map[string]*model.Job)}
}

func (f *fakeAPI) SubmitJob(_ context.Context, query, sessionID, conversationID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "job-" + string(rune('a'+f.nextID-1))
	f.jobs[id] = &model.Job{
		ID:             id,
		Query:          query,
		SessionID:      sessionID,
		ConversationID: conversationID,
		Status:         model.JobStatusQueued,
	}
	return id, nil
}

func (f *fakeAPI) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.errOnGet != nil {
		return nil, f.errOnGet
	}
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeAPI) CancelJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		j.Status = model.JobStatusCancelled
	}
	return nil
}

func (f *fakeAPI) OngoingJobs(_ context.Context, conversationID string) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Job
	for _, j := range f.jobs {
		if j.ConversationID == conversationID && !j.Status.Terminal() {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAPI) JobHistory(_ context.Context, _ int) ([]*model.Job, error) {
	return nil, nil
}

func (f *fakeAPI) setStatus(jobID string, status model.JobStatus, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		j.Status = status
		j.Result = result
	}
}

func (f *fakeAPI) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

// fakeConn scripts a push connection: frames queued on in are read in
// order; after the queue drains, ReadFrame blocks until fail or close.
type fakeConn struct {
	in     chan *wire.Frame
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []*wire.Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan *wire.Frame, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (*wire.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, ErrNormalClose
	}
}

func (c *fakeConn) WriteFrame(f *wire.Frame) error {
	select {
	case <-c.closed:
		return domain.ErrTransport
	default:
	}
	c.mu.Lock()
	c.sent = append(c.sent, f)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(f *wire.Frame) { c.in <- f }
func (c *fakeConn) fail(err error)     { c.errs <- err }

func (c *fakeConn) written() []*wire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*wire.Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeDialer hands out scripted connections, or errors, per dial attempt.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (PushConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i < len(d.conns) && d.conns[i] != nil {
		return d.conns[i], nil
	}
	return nil, domain.ErrTransport
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
