package web

import (
	"net/http"

	"collab-realtime/internal/domain/ports/repository"
	"collab-realtime/internal/infra/ws"
	"collab-realtime/internal/realtime/wire"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Publisher is the outbound half of the event bus the handlers fan out
// through; *bus.Bus satisfies it.
type Publisher interface {
	Publish(subject string, f *wire.Frame) error
}

// Server wires the REST surface: the jobs API the delivery subsystem submits
// and polls through, the messages API, and channel token minting.
type Server struct {
	jobs     repository.JobRepository
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	presence repository.PresenceRepository
	bus      Publisher
	tokens   *ws.TokenManager
	hub      *ws.Hub
	log      *zerolog.Logger
}

func NewServer(
	jobs repository.JobRepository,
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	presence repository.PresenceRepository,
	b Publisher,
	tokens *ws.TokenManager,
	hub *ws.Hub,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		jobs:     jobs,
		rooms:    rooms,
		messages: messages,
		presence: presence,
		bus:      b,
		tokens:   tokens,
		hub:      hub,
		log:      logger,
	}
}

// Router builds the full HTTP surface, push endpoints included.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/v1/auth/channel-token", s.channelToken)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/v1/jobs", s.submitJob)
		r.Get("/api/v1/jobs/history", s.jobHistory)
		r.Get("/api/v1/jobs/{jobID}", s.getJob)
		r.Post("/api/v1/jobs/{jobID}/cancel", s.cancelJob)
		r.Get("/api/v1/conversations/{conversationID}/ongoing-jobs", s.ongoingJobs)
		r.Post("/api/v1/rooms", s.createRoom)
		r.Get("/api/v1/rooms/{roomID}/messages", s.listMessages)
		r.Post("/api/v1/rooms/{roomID}/messages", s.postMessage)
		r.Get("/api/v1/presence/{userID}", s.getPresence)
	})

	if s.hub != nil {
		s.hub.Register(r)
	}
	return r
}

// requireAuth validates the Bearer channel token on REST calls and stores
// the caller's user id on the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.tokens.Verify(bearerToken(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.UserID)))
	})
}
