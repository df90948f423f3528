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

// RoomHandlers receive the frames a room connection dispatches. Nil handlers
// are skipped.
type RoomHandlers struct {
	OnMessage          func(model.Message)
	OnPresence         func(userID string, status model.PresenceStatus)
	OnRoomUpdated      func(*wire.Frame)
	OnParticipantAdded func(*wire.Frame)
	OnTyping           func(*wire.Frame)
}

// RoomChannel is one push connection for one open room. It heartbeats every
// HeartbeatInterval to stay under the server's idle deadline and reconnects
// unconditionally after a fixed delay on any abnormal close, reusing the
// same handlers. Messages replayed across a reconnect are deduplicated by
// sequence number.
type RoomChannel struct {
	roomID   string
	dialer   Dialer
	cfg      config.DeliveryConfig
	policy   ReconnectPolicy
	handlers RoomHandlers
	log      *zerolog.Logger

	mu      sync.Mutex
	conn    PushConn
	lastSeq int64
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRoomChannel(roomID string, dialer Dialer, cfg config.DeliveryConfig, handlers RoomHandlers, log *zerolog.Logger) *RoomChannel {
	l := log.With().Str("room_id", roomID).Logger()
	return &RoomChannel{
		roomID:   roomID,
		dialer:   dialer,
		cfg:      cfg,
		policy:   NewFixedDelay(cfg.RoomRetryDelay),
		handlers: handlers,
		log:      &l,
	}
}

// Open dials the room connection. The first dial runs synchronously so a bad
// credential surfaces to the caller immediately; after that a goroutine owns
// the connection until Close.
func (c *RoomChannel) Open(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, "/ws/rooms/"+c.roomID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(runCtx, conn)
	return nil
}

// Close shuts the connection down with the normal close code so the server
// knows not to expect a reconnect.
func (c *RoomChannel) Close() {
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

// SendTyping publishes a typing indicator to the room.
func (c *RoomChannel) SendTyping(userID string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrTransport
	}
	return conn.WriteFrame(&wire.Frame{Type: wire.TypeTyping, RoomID: c.roomID, UserID: userID})
}

func (c *RoomChannel) run(ctx context.Context, conn PushConn) {
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

		// Abnormal close: unconditional fixed-delay reconnect. Rooms churn
		// with navigation, so responsiveness beats backoff discipline here.
		metrics.IncChannelReconnect("room")
		c.log.Debug().Err(err).Dur("delay", c.policy.Delay(0)).Msg("room connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.policy.Delay(0)):
		}

		next, err := c.dialer.Dial(ctx, "/ws/rooms/"+c.roomID)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				c.log.Error().Err(err).Msg("room credential rejected, giving up")
				return
			}
			// Dial failures loop back into the same fixed-delay retry.
			conn = &deadConn{}
			continue
		}
		conn = next
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
	}
}

func (c *RoomChannel) heartbeat(conn PushConn, stop <-chan struct{}) {
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

func (c *RoomChannel) readLoop(ctx context.Context, conn PushConn) error {
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

func (c *RoomChannel) dispatch(f *wire.Frame) {
	switch f.Type {
	case wire.TypeNewMessage:
		if f.Message == nil {
			return
		}
		c.mu.Lock()
		// Replays after reconnect arrive with already-seen sequence numbers.
		if f.Message.SequenceNumber <= c.lastSeq {
			c.mu.Unlock()
			return
		}
		c.lastSeq = f.Message.SequenceNumber
		c.mu.Unlock()
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(*f.Message)
		}
	case wire.TypePresenceUpdate:
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(f.UserID, model.PresenceStatus(f.Status))
		}
	case wire.TypeRoomUpdated:
		if c.handlers.OnRoomUpdated != nil {
			c.handlers.OnRoomUpdated(f)
		}
	case wire.TypeParticipantAdded:
		if c.handlers.OnParticipantAdded != nil {
			c.handlers.OnParticipantAdded(f)
		}
	case wire.TypeTyping:
		if c.handlers.OnTyping != nil {
			c.handlers.OnTyping(f)
		}
	default:
		c.log.Debug().Str("frame_type", f.Type).Msg("unhandled room frame")
	}
}

// LastSequence returns the highest message sequence number seen so far.
func (c *RoomChannel) LastSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// deadConn satisfies PushConn for the retry path when a reconnect dial
// failed and there is no live connection to read from.
type deadConn struct{}

func (d *deadConn) ReadFrame() (*wire.Frame, error) { return nil, domain.ErrTransport }
func (d *deadConn) WriteFrame(f *wire.Frame) error  { return domain.ErrTransport }
func (d *deadConn) Close() error                    { return nil }
