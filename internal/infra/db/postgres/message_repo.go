// File: internal/infra/db/postgres/message_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.MessageRepository = (*messageRepo)(nil)

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *messageRepo {
	return &messageRepo{pool: pool}
}

// Append assigns the per-room sequence number inside the insert transaction.
// A unique (room_id, sequence_number) index backs the monotonicity
// guarantee; concurrent writers that collide on the next number retry.
func (r *messageRepo) Append(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	const maxRetries = 5
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
			var next int64
			if err := tx.QueryRow(ctx,
				`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages WHERE room_id = $1`,
				msg.RoomID).Scan(&next); err != nil {
				return err
			}
			msg.SequenceNumber = next

			if _, err := tx.Exec(ctx, `
INSERT INTO messages (id, room_id, sender_id, content, sequence_number, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
				msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.SequenceNumber, msg.CreatedAt); err != nil {
				return err
			}

			_, err := tx.Exec(ctx,
				`UPDATE rooms SET last_message_at = $2 WHERE id = $1`,
				msg.RoomID, msg.CreatedAt)
			return err
		})
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Sequence collision with a concurrent writer; take the next number.
			lastErr = err
			continue
		}
		return err
	}
	return lastErr
}

func (r *messageRepo) ListSince(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, room_id, sender_id, content, sequence_number, created_at
FROM messages
WHERE room_id = $1 AND sequence_number > $2
ORDER BY sequence_number
LIMIT $3`, roomID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
