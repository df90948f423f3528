package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/bus"
	"collab-realtime/internal/realtime/wire"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

type ctxKey string

const ctxUserID ctxKey = "user_id"

func withUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxUserID, id)
}

func userID(ctx context.Context) string {
	if v := ctx.Value(ctxUserID); v != nil {
		return v.(string)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type jobResponse struct {
	JobID          string    `json:"job_id"`
	Query          string    `json:"query"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	Status         string    `json:"status"`
	Result         string    `json:"result,omitempty"`
	Error          string    `json:"error,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{
		JobID:          j.ID,
		Query:          j.Query,
		SessionID:      j.SessionID,
		ConversationID: j.ConversationID,
		Status:         string(j.Status),
		Result:         j.Result,
		Error:          j.LastError,
		SubmittedAt:    j.SubmittedAt,
	}
}

// channelToken mints a push credential. Who the user is comes from the
// platform's session layer, which is outside this subsystem; the dev
// surface takes it as a parameter.
func (s *Server) channelToken(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if uid == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	token, err := s.tokens.Mint(uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "user_id": uid})
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query          string `json:"query"`
		SessionID      string `json:"session_id"`
		ConversationID string `json:"conversation_id"`
		ExecutionMode  string `json:"execution_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.ConversationID == "" {
		http.Error(w, "query and conversation_id are required", http.StatusBadRequest)
		return
	}

	job := &model.Job{
		ID:             ulid.Make().String(),
		Query:          req.Query,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		ExecutionMode:  req.ExecutionMode,
		Status:         model.JobStatusQueued,
		SubmittedAt:    time.Now(),
	}
	if err := s.jobs.Save(r.Context(), job); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.FindByID(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// cancelJob flips a non-terminal job to cancelled and pushes the terminal
// event so any session still tracking the job resolves it. Cancelling a
// job that already reached a terminal status is a no-op.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	changed, err := s.jobs.MarkCancelled(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if changed {
		job, err := s.jobs.FindByID(r.Context(), jobID)
		if err == nil {
			f := &wire.Frame{
				Type:           wire.TypeBackgroundJobCompleted,
				JobID:          job.ID,
				ConversationID: job.ConversationID,
				Status:         string(model.JobStatusCancelled),
			}
			_ = s.bus.Publish(bus.JobSubject(job.ID), f)
			_ = s.bus.Publish(bus.ConversationSubject(job.ConversationID), f)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": changed})
}

func (s *Server) ongoingJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListOngoingByConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) jobHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.jobs.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type         string   `json:"type"`
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if len(req.Participants) == 0 {
		http.Error(w, "participants are required", http.StatusBadRequest)
		return
	}
	roomType := model.RoomType(req.Type)
	if roomType != model.RoomTypeDirect && roomType != model.RoomTypeGroup {
		roomType = model.RoomTypeGroup
	}

	room := &model.Room{
		Type:         roomType,
		Name:         req.Name,
		Participants: req.Participants,
	}
	if err := s.rooms.Save(r.Context(), room); err != nil {
		writeError(w, err)
		return
	}

	// New-room notification reaches every participant's user channel.
	for _, uid := range room.Participants {
		_ = s.bus.Publish(bus.UserSubject(uid), &wire.Frame{
			Type:   wire.TypeRoomUpdated,
			RoomID: room.ID,
			Name:   room.Name,
		})
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := s.messages.ListSince(r.Context(), roomID, afterSeq, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// postMessage persists the message (which assigns its sequence number),
// fans it out to the room connection, and notifies the other participants'
// user channels.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	sender := userID(r.Context())

	room, err := s.rooms.FindByID(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	msg := &model.Message{
		RoomID:   roomID,
		SenderID: sender,
		Content:  req.Content,
	}
	if err := s.messages.Append(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}

	frame := &wire.Frame{Type: wire.TypeNewMessage, RoomID: roomID, Message: msg}
	_ = s.bus.Publish(bus.RoomSubject(roomID), frame)
	for _, uid := range room.Participants {
		if uid != sender {
			_ = s.bus.Publish(bus.UserSubject(uid), frame)
		}
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	rec, err := s.presence.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, model.PresenceRecord{
				UserID: chi.URLParam(r, "userID"),
				Status: model.PresenceOffline,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
