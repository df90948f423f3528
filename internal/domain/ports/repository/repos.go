package repository

import (
	"context"

	"collab-realtime/internal/domain/model"
)

// JobRepository is the durable store behind the jobs API and the runner.
type JobRepository interface {
	Save(ctx context.Context, job *model.Job) error
	FindByID(ctx context.Context, id string) (*model.Job, error)
	// FetchAndMarkRunning claims the oldest queued job, or domain.ErrNotFound.
	FetchAndMarkRunning(ctx context.Context) (*model.Job, error)
	ListOngoingByConversation(ctx context.Context, conversationID string) ([]*model.Job, error)
	ListHistory(ctx context.Context, limit int) ([]*model.Job, error)
	// MarkCancelled flips a non-terminal job to cancelled; terminal jobs are
	// left untouched and reported via the bool.
	MarkCancelled(ctx context.Context, id string) (bool, error)
}

type RoomRepository interface {
	Save(ctx context.Context, room *model.Room) error
	FindByID(ctx context.Context, id string) (*model.Room, error)
	ListByParticipant(ctx context.Context, userID string) ([]*model.Room, error)
}

type MessageRepository interface {
	// Append stores the message and assigns its per-room sequence number.
	Append(ctx context.Context, msg *model.Message) error
	ListSince(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*model.Message, error)
}

type PresenceRepository interface {
	Set(ctx context.Context, rec *model.PresenceRecord) error
	Get(ctx context.Context, userID string) (*model.PresenceRecord, error)
}
