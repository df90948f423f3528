package ws

import (
	"net/http"
	"sync"
	"time"

	"collab-realtime/internal/infra/metrics"
	"collab-realtime/internal/realtime/wire"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// session is one upgraded connection: a buffered outbound queue drained by
// serve, and a read pump that refreshes the idle deadline on every inbound
// frame. Heartbeats exist only to refresh that deadline.
type session struct {
	conn *websocket.Conn
	kind string
	idle time.Duration
	log  *zerolog.Logger

	out     chan *wire.Frame
	done    chan struct{}
	onFrame func(*wire.Frame)

	closeOnce sync.Once
}

func (h *Hub) open(w http.ResponseWriter, r *http.Request, kind string) (*session, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("kind", kind).Msg("upgrade failed")
		return nil, err
	}
	metrics.IncChannelsOpen(kind)
	return &session{
		conn: conn,
		kind: kind,
		idle: h.idle,
		log:  h.log,
		out:  make(chan *wire.Frame, 64),
		done: make(chan struct{}),
	}, nil
}

// enqueue queues a frame for the writer; a slow consumer loses frames
// rather than blocking the bus callback.
func (s *session) enqueue(f *wire.Frame) {
	select {
	case s.out <- f:
	default:
		s.log.Warn().Str("kind", s.kind).Msg("outbound queue full, frame dropped")
	}
}

// serve runs the read pump and drains the outbound queue until the client
// disconnects or a terminal frame is written. Terminal frames are followed
// by the normal close code, so the client's close handler knows not to fall
// back to polling.
func (s *session) serve() {
	go s.readPump()

	for {
		select {
		case <-s.done:
			return
		case f := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(f); err != nil {
				return
			}
			if f.Terminal() && s.kind == "job" {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
		}
	}
}

func (s *session) readPump() {
	defer close(s.done)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		var f wire.Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type == wire.TypeHeartbeat {
			continue
		}
		if s.onFrame != nil {
			s.onFrame(&f)
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		metrics.DecChannelsOpen(s.kind)
		_ = s.conn.Close()
	})
}
