// Package ws is the server side of the push transport: one HTTP upgrade
// handler per channel kind, bridging bus subjects onto websocket
// connections. Clients heartbeat under the idle deadline; a connection that
// goes silent past it is dropped with an abnormal close, which is what
// triggers the client's reconnect path.
package ws

import (
	"context"
	"net/http"
	"time"

	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/domain/ports/repository"
	"collab-realtime/internal/infra/bus"
	"collab-realtime/internal/infra/metrics"
	"collab-realtime/internal/realtime/wire"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventBus is the fanout surface the hub bridges onto sockets; *bus.Bus
// satisfies it.
type EventBus interface {
	Publish(subject string, f *wire.Frame) error
	Subscribe(subject string, fn func(*wire.Frame)) (func(), error)
}

type Hub struct {
	bus      EventBus
	jobs     repository.JobRepository
	presence repository.PresenceRepository
	tokens   *TokenManager
	idle     time.Duration
	log      *zerolog.Logger
	upgrader websocket.Upgrader
}

func NewHub(b EventBus, jobs repository.JobRepository, presence repository.PresenceRepository, tokens *TokenManager, idle time.Duration, log *zerolog.Logger) *Hub {
	return &Hub{
		bus:      b,
		jobs:     jobs,
		presence: presence,
		tokens:   tokens,
		idle:     idle,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Register attaches the push endpoints to the router.
func (h *Hub) Register(r chi.Router) {
	r.Get("/ws/job-progress/{jobID}", h.handleJobProgress)
	r.Get("/ws/conversation-jobs/{conversationID}", h.handleConversationJobs)
	r.Get("/ws/rooms/{roomID}", h.handleRoom)
	r.Get("/ws/user", h.handleUser)
}

func (h *Hub) authenticate(w http.ResponseWriter, r *http.Request) (*ChannelClaims, bool) {
	claims, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid channel token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// handleJobProgress serves one job's lifecycle events. If the job is already
// terminal when the socket opens (the push/poll race), the terminal frame is
// sent immediately and the connection closes normally.
func (h *Hub) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")

	sess, err := h.open(w, r, "job")
	if err != nil {
		return
	}
	defer sess.close()

	unsub, err := h.bus.Subscribe(bus.JobSubject(jobID), sess.enqueue)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("bus subscribe failed")
		return
	}
	defer unsub()

	if job, err := h.jobs.FindByID(r.Context(), jobID); err == nil && job.Status.Terminal() {
		sess.enqueue(terminalFrame(job))
	}

	sess.serve()
}

func (h *Hub) handleConversationJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	convID := chi.URLParam(r, "conversationID")

	sess, err := h.open(w, r, "conversation")
	if err != nil {
		return
	}
	defer sess.close()

	unsub, err := h.bus.Subscribe(bus.ConversationSubject(convID), sess.enqueue)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", convID).Msg("bus subscribe failed")
		return
	}
	defer unsub()

	// Snapshot first so a reconnecting client can resume tracking.
	if jobs, err := h.jobs.ListOngoingByConversation(r.Context(), convID); err == nil {
		refs := make([]wire.JobRef, 0, len(jobs))
		for _, j := range jobs {
			refs = append(refs, wire.JobRef{
				JobID:          j.ID,
				ConversationID: j.ConversationID,
				Status:         string(j.Status),
				Query:          j.Query,
			})
		}
		sess.enqueue(&wire.Frame{Type: wire.TypeOngoingJobs, Jobs: refs})
	}

	sess.serve()
}

func (h *Hub) handleRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")

	sess, err := h.open(w, r, "room")
	if err != nil {
		return
	}
	defer sess.close()

	unsubRoom, err := h.bus.Subscribe(bus.RoomSubject(roomID), sess.enqueue)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("bus subscribe failed")
		return
	}
	defer unsubRoom()

	unsubPresence, err := h.bus.Subscribe(bus.PresenceSubject, sess.enqueue)
	if err == nil {
		defer unsubPresence()
	}

	// Typing indicators from this client fan back out to the room.
	sess.onFrame = func(f *wire.Frame) {
		if f.Type == wire.TypeTyping {
			f.RoomID = roomID
			f.UserID = claims.UserID
			_ = h.bus.Publish(bus.RoomSubject(roomID), f)
		}
	}

	sess.serve()
}

func (h *Hub) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	sess, err := h.open(w, r, "user")
	if err != nil {
		return
	}
	defer sess.close()

	unsubUser, err := h.bus.Subscribe(bus.UserSubject(claims.UserID), sess.enqueue)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID).Msg("bus subscribe failed")
		return
	}
	defer unsubUser()

	unsubPresence, err := h.bus.Subscribe(bus.PresenceSubject, sess.enqueue)
	if err == nil {
		defer unsubPresence()
	}

	// Presence publishes from this client are stored and broadcast.
	sess.onFrame = func(f *wire.Frame) {
		if f.Type != wire.TypePresenceUpdate {
			return
		}
		rec := &model.PresenceRecord{
			UserID:        claims.UserID,
			Status:        model.PresenceStatus(f.Status),
			StatusMessage: f.StatusMessage,
			LastSeenAt:    time.Now(),
		}
		if err := h.presence.Set(context.Background(), rec); err != nil {
			h.log.Warn().Err(err).Str("user_id", claims.UserID).Msg("presence store failed")
		}
		metrics.IncPresenceUpdate()
		f.UserID = claims.UserID
		_ = h.bus.Publish(bus.PresenceSubject, f)
	}

	sess.serve()
}

func terminalFrame(job *model.Job) *wire.Frame {
	switch job.Status {
	case model.JobStatusFailed:
		return &wire.Frame{
			Type:           wire.TypeJobError,
			JobID:          job.ID,
			ConversationID: job.ConversationID,
			Error:          job.LastError,
		}
	case model.JobStatusCompleted:
		return &wire.Frame{
			Type:           wire.TypeJobCompleted,
			JobID:          job.ID,
			ConversationID: job.ConversationID,
			Query:          job.Query,
			Result:         job.Result,
		}
	default:
		// Cancelled (or any other non-success terminal) replays the same
		// frame a live cancel publishes, carrying the real status.
		return &wire.Frame{
			Type:           wire.TypeBackgroundJobCompleted,
			JobID:          job.ID,
			ConversationID: job.ConversationID,
			Status:         string(job.Status),
		}
	}
}
