package realtime

import (
	"context"
	"sync"
	"time"

	"collab-realtime/internal/config"
	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/logging"
	"collab-realtime/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// CompletionHandler receives a job's terminal event.
type CompletionHandler func(TerminalEvent)

// Subscription is a cancellable completion registration. Cancel is
// idempotent; a cancelled subscription never fires again, which keeps
// handlers from leaking across reconnects and navigations.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// JobManager submits, cancels and tracks jobs. It owns exactly one
// DeliveryChannel per unresolved job and gates every terminal event through
// the scope guard and the registry's completed-id set, so the UI sees each
// job's terminal event at most once and only in the right conversation.
type JobManager struct {
	api    JobAPI
	dialer Dialer
	reg    *DeliveryRegistry
	guard  *ScopeGuard
	cfg    config.DeliveryConfig
	log    *zerolog.Logger

	mu      sync.Mutex
	nextSub int
	subs    map[string]map[int]CompletionHandler // jobID -> subID -> handler
	cancels map[string]context.CancelFunc        // jobID -> channel teardown
}

func NewJobManager(api JobAPI, dialer Dialer, reg *DeliveryRegistry, guard *ScopeGuard, cfg config.DeliveryConfig, log *zerolog.Logger) *JobManager {
	return &JobManager{
		api:     api,
		dialer:  dialer,
		reg:     reg,
		guard:   guard,
		cfg:     cfg,
		log:     log,
		subs:    make(map[string]map[int]CompletionHandler),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit creates the job server-side, registers it locally and opens its
// delivery channel.
func (m *JobManager) Submit(ctx context.Context, query, sessionID, conversationID string) (string, error) {
	defer logging.TraceDuration(m.log, "JobManager.Submit")()

	jobID, err := m.api.SubmitJob(ctx, query, sessionID, conversationID, "async")
	if err != nil {
		return "", err
	}

	job := &model.Job{
		ID:             jobID,
		Query:          query,
		SessionID:      sessionID,
		ConversationID: conversationID,
		Status:         model.JobStatusSubmitted,
		SubmittedAt:    time.Now(),
	}
	if err := m.reg.AddJob(job); err != nil {
		return "", err
	}

	m.openChannel(jobID)
	return jobID, nil
}

// Track adopts a job that already exists server-side (e.g. resumed from an
// ongoing_jobs listing after reconnect) and opens a delivery channel for it.
func (m *JobManager) Track(job *model.Job) error {
	if job.Status.Terminal() {
		return domain.ErrJobNotActive
	}
	if err := m.reg.AddJob(job); err != nil {
		return err
	}
	m.openChannel(job.ID)
	return nil
}

func (m *JobManager) openChannel(jobID string) {
	chCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancels[jobID] = cancel
	m.mu.Unlock()

	ch := NewDeliveryChannel(jobID, m.dialer, m.api, m.cfg, m.reg, m.log)
	go ch.Run(chCtx, func(ev TerminalEvent) { m.deliver(jobID, ev) })
}

// Cancel tears the local session down immediately, asks the backing store to
// stop the computation, and emits the cancelled terminal event. Anything the
// backing computation later emits for this job is dropped by the
// completed-id guard.
func (m *JobManager) Cancel(ctx context.Context, jobID string) error {
	defer logging.TraceDuration(m.log, "JobManager.Cancel")()

	job, ok := m.reg.Job(jobID)
	if !ok {
		return domain.ErrJobNotActive
	}

	m.mu.Lock()
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}
	m.mu.Unlock()

	if err := m.api.CancelJob(ctx, jobID); err != nil {
		m.log.Warn().Err(err).Str("job_id", jobID).Msg("server-side cancel failed")
	}

	job.Status = model.JobStatusCancelled
	job.UpdatedAt = time.Now()
	m.deliver(jobID, TerminalEvent{Job: job})
	return nil
}

// Status returns the locally tracked job, falling back to the REST surface
// for jobs this session no longer holds.
func (m *JobManager) Status(ctx context.Context, jobID string) (*model.Job, error) {
	if job, ok := m.reg.Job(jobID); ok {
		return job, nil
	}
	return m.api.GetJob(ctx, jobID)
}

// Subscribe registers a completion handler for one job. The returned
// Subscription must be cancelled when the caller stops caring.
func (m *JobManager) Subscribe(jobID string, h CompletionHandler) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	if m.subs[jobID] == nil {
		m.subs[jobID] = make(map[int]CompletionHandler)
	}
	m.subs[jobID][id] = h

	return &Subscription{cancel: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if hs := m.subs[jobID]; hs != nil {
			delete(hs, id)
			if len(hs) == 0 {
				delete(m.subs, jobID)
			}
		}
	}}
}

// Close stops every open delivery channel. The registry itself is closed by
// the session owner.
func (m *JobManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.subs = make(map[string]map[int]CompletionHandler)
}

// deliver is the single terminal sink shared by every transport and by
// Cancel. Ordering matters: dedupe first (push and a stale in-flight poll
// may both resolve the same job), then scope-gate, then fan out.
func (m *JobManager) deliver(jobID string, ev TerminalEvent) {
	if !m.reg.Resolve(jobID) {
		metrics.IncDeliveryDrop("duplicate")
		m.log.Debug().Str("job_id", jobID).Msg("duplicate terminal event dropped")
		return
	}

	if ev.Job != nil {
		if !m.guard.Accept(ev.Job.ConversationID) {
			// The user navigated away. Dropped silently, never surfaced.
			metrics.IncDeliveryDrop("scope")
			m.log.Info().
				Str("job_id", jobID).
				Str("conversation_id", ev.Job.ConversationID).
				Msg("terminal event outside active conversation dropped")
			m.release(jobID)
			return
		}
		metrics.IncJobTerminal(string(ev.Job.Status))
	}

	m.mu.Lock()
	var handlers []CompletionHandler
	for _, h := range m.subs[jobID] {
		handlers = append(handlers, h)
	}
	delete(m.subs, jobID)
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// release discards a job's handlers and channel without firing anything.
func (m *JobManager) release(jobID string) {
	m.mu.Lock()
	delete(m.subs, jobID)
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}
	m.mu.Unlock()
}
