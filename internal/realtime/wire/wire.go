// Package wire defines the frame format shared by the websocket hub and the
// realtime client. Every frame is a flat JSON object with a "type"
// discriminator; absent fields are omitted.
package wire

import "collab-realtime/internal/domain/model"

const (
	TypeJobProgress            = "job_progress"
	TypeJobCompleted           = "job_completed"
	TypeJobError               = "job_error"
	TypeNewMessage             = "new_message"
	TypePresenceUpdate         = "presence_update"
	TypeRoomUpdated            = "room_updated"
	TypeParticipantAdded       = "participant_added"
	TypeTyping                 = "typing"
	TypeOngoingJobs            = "ongoing_jobs"
	TypeBackgroundJobCompleted = "background_job_completed"
	TypeHeartbeat              = "heartbeat" // client -> server only
)

type Frame struct {
	Type string `json:"type"`

	// job lifecycle
	JobID          string   `json:"job_id,omitempty"`
	Progress       float64  `json:"progress,omitempty"`
	Result         string   `json:"result,omitempty"`
	Query          string   `json:"query,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Error          string   `json:"error,omitempty"`
	Status         string   `json:"status,omitempty"`
	Jobs           []JobRef `json:"jobs,omitempty"`

	// rooms
	Message *model.Message `json:"message,omitempty"`
	RoomID  string         `json:"room_id,omitempty"`
	Name    string         `json:"name,omitempty"`

	// presence / participants
	UserID        string `json:"user_id,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// JobRef is the compact job listing sent in ongoing_jobs frames.
type JobRef struct {
	JobID          string `json:"job_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Query          string `json:"query,omitempty"`
}

// Terminal reports whether the frame ends a job's delivery session.
func (f *Frame) Terminal() bool {
	switch f.Type {
	case TypeJobCompleted, TypeJobError:
		return true
	}
	return f.Type == TypeBackgroundJobCompleted
}
