package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"collab-realtime/internal/config"
	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/metrics"
	"collab-realtime/internal/realtime/wire"

	"github.com/rs/zerolog"
)

// UserHandlers receive the frames the per-user connection dispatches:
// notifications for rooms not currently open, room lifecycle changes,
// presence, and background job completions.
type UserHandlers struct {
	OnNotification  func(*wire.Frame) // new_message for a room that is not open
	OnRoomUpdated   func(*wire.Frame) // new rooms, renames
	OnParticipant   func(*wire.Frame)
	OnPresence      func(userID string, status model.PresenceStatus)
	OnOngoingJobs   func([]wire.JobRef)
	OnBackgroundJob func(*wire.Frame) // background_job_completed
}

// UserChannel is the single long-lived push connection per authenticated
// user. It reconnects with exponential backoff capped at UserBackoffCap; the
// attempt counter resets to zero on every successful open, so a stable
// network pays the base delay only. Immediate retries under sustained loss
// would be wasteful for a connection that lives as long as the session.
type UserChannel struct {
	dialer   Dialer
	cfg      config.DeliveryConfig
	policy   ReconnectPolicy
	handlers UserHandlers
	log      *zerolog.Logger

	mu       sync.Mutex
	conn     PushConn
	attempts int
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewUserChannel(dialer Dialer, cfg config.DeliveryConfig, handlers UserHandlers, log *zerolog.Logger) *UserChannel {
	return &UserChannel{
		dialer:   dialer,
		cfg:      cfg,
		policy:   NewExponentialBackoff(cfg.UserBackoffBase, cfg.UserBackoffCap),
		handlers: handlers,
		log:      log,
	}
}

// Open dials the user connection; the first dial is synchronous so auth
// failures surface immediately and are never retried.
func (c *UserChannel) Open(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, "/ws/user")
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx, conn)
	return nil
}

func (c *UserChannel) Close() {
	c.mu.Lock()
	cancel, conn, done := c.cancel, c.conn, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

// Send writes a frame on the user connection; the presence service publishes
// through it.
func (c *UserChannel) Send(f *wire.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrTransport
	}
	return conn.WriteFrame(f)
}

// Attempts returns the current consecutive-failure count.
func (c *UserChannel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *UserChannel) run(ctx context.Context, conn PushConn) {
	defer close(c.done)

	for {
		hbStop := make(chan struct{})
		go c.heartbeat(conn, hbStop)

		err := c.readLoop(ctx, conn)
		close(hbStop)
		_ = conn.Close()

		if ctx.Err() != nil || errors.Is(err, ErrNormalClose) {
			return
		}

		// Abnormal close. Each consecutive failure doubles the delay.
		for {
			c.mu.Lock()
			c.attempts++
			attempt := c.attempts
			c.mu.Unlock()

			delay := c.policy.Delay(attempt)
			metrics.IncChannelReconnect("user")
			c.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("user connection lost, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, dialErr := c.dialer.Dial(ctx, "/ws/user")
			if dialErr == nil {
				conn = next
				c.mu.Lock()
				c.conn = conn
				c.attempts = 0
				c.mu.Unlock()
				break
			}
			if errors.Is(dialErr, domain.ErrAuth) {
				c.log.Error().Err(dialErr).Msg("user credential rejected, giving up")
				return
			}
			err = dialErr
		}
	}
}

func (c *UserChannel) heartbeat(conn PushConn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteFrame(&wire.Frame{Type: wire.TypeHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (c *UserChannel) readLoop(ctx context.Context, conn PushConn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		c.dispatch(f)
	}
}

func (c *UserChannel) dispatch(f *wire.Frame) {
	switch f.Type {
	case wire.TypeNewMessage:
		if c.handlers.OnNotification != nil {
			c.handlers.OnNotification(f)
		}
	case wire.TypeRoomUpdated:
		if c.handlers.OnRoomUpdated != nil {
			c.handlers.OnRoomUpdated(f)
		}
	case wire.TypeParticipantAdded:
		if c.handlers.OnParticipant != nil {
			c.handlers.OnParticipant(f)
		}
	case wire.TypePresenceUpdate:
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(f.UserID, model.PresenceStatus(f.Status))
		}
	case wire.TypeOngoingJobs:
		if c.handlers.OnOngoingJobs != nil {
			c.handlers.OnOngoingJobs(f.Jobs)
		}
	case wire.TypeBackgroundJobCompleted:
		if c.handlers.OnBackgroundJob != nil {
			c.handlers.OnBackgroundJob(f)
		}
	default:
		c.log.Debug().Str("frame_type", f.Type).Msg("unhandled user frame")
	}
}
