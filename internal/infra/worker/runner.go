package worker

import (
	"context"
	"errors"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/domain/ports/adapter"
	"collab-realtime/internal/domain/ports/repository"
	"collab-realtime/internal/infra/bus"
	"collab-realtime/internal/infra/metrics"
	"collab-realtime/internal/realtime/wire"

	"github.com/rs/zerolog"
)

// Publisher is the outbound half of the event bus; *bus.Bus satisfies it.
type Publisher interface {
	Publish(subject string, f *wire.Frame) error
}

// Runner executes queued jobs against the AI adapter and publishes terminal
// events on the bus. The delivery subsystem on the client side only ever
// sees the published frames and the REST status.
type Runner struct {
	jobs  repository.JobRepository
	ai    adapter.AIServiceAdapter
	bus   Publisher
	model string
	log   *zerolog.Logger
}

func NewRunner(jobs repository.JobRepository, ai adapter.AIServiceAdapter, b Publisher, model string, log *zerolog.Logger) *Runner {
	return &Runner{jobs: jobs, ai: ai, bus: b, model: model, log: log}
}

// Start runs the claim loop. This should be run in a goroutine.
func (r *Runner) Start(ctx context.Context, pool *Pool) {
	r.log.Info().Msg("job runner started")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("job runner stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				r.processOne(ctx)
				return nil
			})
		}
	}
}

func (r *Runner) processOne(ctx context.Context) {
	job, err := r.jobs.FetchAndMarkRunning(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.log.Error().Err(err).Msg("failed to fetch job")
		}
		return
	}

	promptTokens, err := r.ai.CountTokens(ctx, r.model, job.Query)
	if err != nil {
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("prompt token count failed")
	} else {
		metrics.ObserveJobPromptTokens(float64(promptTokens))
	}

	r.log.Info().
		Str("job_id", job.ID).
		Str("conversation_id", job.ConversationID).
		Int("prompt_tokens", promptTokens).
		Msg("running job")
	start := time.Now()

	r.publishProgress(job, 0.1)
	result, runErr := r.ai.Complete(ctx, r.model, job.Query)
	latency := time.Since(start)

	// A cancel may have landed while the computation ran; its terminal
	// event is already out, so this result is dropped.
	if current, err := r.jobs.FindByID(context.Background(), job.ID); err == nil &&
		current.Status == model.JobStatusCancelled {
		r.log.Info().Str("job_id", job.ID).Msg("job cancelled mid-run, result dropped")
		return
	}

	if runErr != nil {
		job.Status = model.JobStatusFailed
		job.LastError = runErr.Error()
		r.log.Error().Err(runErr).Str("job_id", job.ID).Msg("job failed")
	} else {
		job.Status = model.JobStatusCompleted
		job.Result = result
	}

	if err := r.jobs.Save(context.Background(), job); err != nil {
		r.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to save terminal status")
		return
	}

	metrics.IncJobTerminal(string(job.Status))
	metrics.ObserveJobRunLatency(float64(latency / time.Millisecond))
	r.publishTerminal(job)
	r.log.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Dur("duration", latency).
		Msg("job finished")
}

func (r *Runner) publishProgress(job *model.Job, progress float64) {
	_ = r.bus.Publish(bus.JobSubject(job.ID), &wire.Frame{
		Type:     wire.TypeJobProgress,
		JobID:    job.ID,
		Progress: progress,
	})
}

func (r *Runner) publishTerminal(job *model.Job) {
	var f *wire.Frame
	if job.Status == model.JobStatusFailed {
		f = &wire.Frame{
			Type:           wire.TypeJobError,
			JobID:          job.ID,
			ConversationID: job.ConversationID,
			Error:          job.LastError,
		}
	} else {
		f = &wire.Frame{
			Type:           wire.TypeJobCompleted,
			JobID:          job.ID,
			ConversationID: job.ConversationID,
			Query:          job.Query,
			Result:         job.Result,
		}
	}
	_ = r.bus.Publish(bus.JobSubject(job.ID), f)

	// Conversation-scope listeners get the compact notification.
	_ = r.bus.Publish(bus.ConversationSubject(job.ConversationID), &wire.Frame{
		Type:           wire.TypeBackgroundJobCompleted,
		JobID:          job.ID,
		ConversationID: job.ConversationID,
		Status:         string(job.Status),
	})
}
