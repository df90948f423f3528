package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collab-realtime/internal/config"
	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/metrics"
	"collab-realtime/internal/realtime/wire"

	"github.com/rs/zerolog"
)

// TerminalEvent is what a delivery channel writes into its sink exactly once:
// either the resolved job, or a delivery-level error (auth failure, polling
// exhausted). A failed computation is NOT an Err here; it arrives as a job
// with status=failed.
type TerminalEvent struct {
	Job *model.Job
	Err error
}

type channelState int

const (
	stateInit channelState = iota
	statePushActive
	statePollActive
	stateTerminal
)

// DeliveryChannel drives one job's lifecycle events to a terminal sink:
// push first, poll fallback. One goroutine per channel runs the state
// machine; only one transport is ever live at a time.
type DeliveryChannel struct {
	jobID  string
	dialer Dialer
	api    JobAPI
	cfg    config.DeliveryConfig
	reg    *DeliveryRegistry
	log    *zerolog.Logger

	// OnProgress, when set, receives job_progress frames. Push-only; polls
	// do not report progress.
	OnProgress func(progress float64)
}

func NewDeliveryChannel(jobID string, dialer Dialer, api JobAPI, cfg config.DeliveryConfig, reg *DeliveryRegistry, log *zerolog.Logger) *DeliveryChannel {
	l := log.With().Str("job_id", jobID).Logger()
	return &DeliveryChannel{
		jobID:  jobID,
		dialer: dialer,
		api:    api,
		cfg:    cfg,
		reg:    reg,
		log:    &l,
	}
}

// Run executes the state machine until a terminal event is produced or ctx
// is cancelled. The sink is called at most once.
func (c *DeliveryChannel) Run(ctx context.Context, sink func(TerminalEvent)) {
	if err := c.reg.OpenSession(c.jobID, model.TransportPush); err != nil {
		// A second session for the same job is a caller bug; never race the
		// first one.
		c.log.Error().Err(err).Msg("delivery session already open")
		return
	}
	defer c.reg.CloseSession(c.jobID)

	state := stateInit
	var conn PushConn

	for state != stateTerminal {
		if ctx.Err() != nil {
			return
		}
		switch state {
		case stateInit:
			hsCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
			pc, err := c.dialer.Dial(hsCtx, "/ws/job-progress/"+c.jobID)
			cancel()
			switch {
			case err == nil:
				conn = pc
				state = statePushActive
			case errors.Is(err, domain.ErrAuth):
				sink(TerminalEvent{Err: err})
				return
			default:
				// Handshake timed out or failed: fall back to polling.
				c.log.Debug().Err(err).Msg("push handshake failed, polling")
				metrics.IncDeliveryFallback()
				c.reg.SwitchTransport(c.jobID, model.TransportPoll)
				state = statePollActive
			}

		case statePushActive:
			job, err := c.readUntilTerminal(ctx, conn)
			_ = conn.Close()
			conn = nil
			if job != nil {
				sink(TerminalEvent{Job: job})
				return
			}
			if ctx.Err() != nil {
				return
			}
			// Push dropped before a terminal event arrived. One fallback,
			// then polling owns the job.
			c.log.Debug().Err(err).Msg("push transport lost, polling")
			metrics.IncDeliveryFallback()
			c.reg.SwitchTransport(c.jobID, model.TransportPoll)
			state = statePollActive

		case statePollActive:
			c.poll(ctx, sink)
			return
		}
	}
}

// readUntilTerminal consumes push frames until a terminal frame, an error,
// or cancellation. The terminal close below uses the normal close code so
// the peer's close handler does not also schedule polling.
func (c *DeliveryChannel) readUntilTerminal(ctx context.Context, conn PushConn) (*model.Job, error) {
	frames := make(chan *wire.Frame)
	errs := make(chan error, 1)
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				errs <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-errs:
			return nil, err
		case f := <-frames:
			switch f.Type {
			case wire.TypeJobProgress:
				if c.OnProgress != nil {
					c.OnProgress(f.Progress)
				}
			case wire.TypeJobCompleted:
				return &model.Job{
					ID:             c.jobID,
					Query:          f.Query,
					ConversationID: f.ConversationID,
					Status:         model.JobStatusCompleted,
					Result:         f.Result,
					UpdatedAt:      time.Now(),
				}, nil
			case wire.TypeJobError:
				return &model.Job{
					ID:             c.jobID,
					ConversationID: f.ConversationID,
					Status:         model.JobStatusFailed,
					LastError:      f.Error,
					UpdatedAt:      time.Now(),
				}, nil
			case wire.TypeBackgroundJobCompleted:
				// Server-side cancellation arrives this way.
				status := model.JobStatus(f.Status)
				if !status.Terminal() {
					status = model.JobStatusCancelled
				}
				return &model.Job{
					ID:             c.jobID,
					ConversationID: f.ConversationID,
					Status:         status,
					UpdatedAt:      time.Now(),
				}, nil
			}
		}
	}
}

// poll asks the REST surface for the job status every PollInterval, up to
// MaxPollAttempts, then gives up with ErrDeliveryTimeout. That timeout is a
// delivery outcome, distinct from a job-level failure.
func (c *DeliveryChannel) poll(ctx context.Context, sink func(TerminalEvent)) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err := c.api.GetJob(ctx, c.jobID)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				sink(TerminalEvent{Err: err})
				return
			}
			c.log.Debug().Err(err).Int("attempt", attempt).Msg("poll failed")
			continue
		}
		if job.Status.Terminal() {
			sink(TerminalEvent{Job: job})
			return
		}
	}
	sink(TerminalEvent{Err: fmt.Errorf("%w: job %s after %d polls", domain.ErrDeliveryTimeout, c.jobID, c.cfg.MaxPollAttempts)})
}
