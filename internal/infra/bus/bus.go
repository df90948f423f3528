// Package bus is the NATS fabric between the REST layer, the job runner and
// the websocket hub. Subjects:
//
//	jobs.<jobID>          terminal and progress frames for one job
//	jobs.conv.<convID>    the same events keyed by conversation
//	rooms.<roomID>        message/membership/typing frames for one room
//	users.<userID>        cross-room notifications for one user
//	presence              presence broadcasts, fanned out to everyone
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"collab-realtime/internal/realtime/wire"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type Bus struct {
	nc  *nats.Conn
	log *zerolog.Logger
}

func Connect(url, name string, log *zerolog.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{nc: nc, log: log}, nil
}

func (b *Bus) Close() {
	b.nc.Drain()
}

// Publish sends one frame on a subject.
func (b *Bus) Publish(subject string, f *wire.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// Subscribe delivers decoded frames to fn until the returned unsubscribe
// func is called. Malformed payloads are logged and skipped.
func (b *Bus) Subscribe(subject string, fn func(*wire.Frame)) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var f wire.Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			b.log.Warn().Err(err).Str("subject", subject).Msg("bad frame on bus")
			return
		}
		fn(&f)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func JobSubject(jobID string) string           { return "jobs." + jobID }
func ConversationSubject(convID string) string { return "jobs.conv." + convID }
func RoomSubject(roomID string) string         { return "rooms." + roomID }
func UserSubject(userID string) string         { return "users." + userID }

const PresenceSubject = "presence"
