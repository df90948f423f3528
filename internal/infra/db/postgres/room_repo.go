// File: internal/infra/db/postgres/room_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.RoomRepository = (*roomRepo)(nil)

type roomRepo struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) *roomRepo {
	return &roomRepo{pool: pool}
}

func (r *roomRepo) Save(ctx context.Context, room *model.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}

	const q = `
INSERT INTO rooms (id, type, name, participants, last_message_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  participants = EXCLUDED.participants,
  last_message_at = EXCLUDED.last_message_at;`

	_, err := r.pool.Exec(ctx, q,
		room.ID, room.Type, room.Name, room.Participants, room.LastMessageAt, room.CreatedAt)
	return err
}

func (r *roomRepo) FindByID(ctx context.Context, id string) (*model.Room, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, type, name, participants, last_message_at, created_at
FROM rooms WHERE id = $1`, id)
	return scanRoom(row)
}

func (r *roomRepo) ListByParticipant(ctx context.Context, userID string) ([]*model.Room, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, type, name, participants, last_message_at, created_at
FROM rooms WHERE $1 = ANY(participants)
ORDER BY last_message_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var room model.Room
	var typ string
	err := row.Scan(&room.ID, &typ, &room.Name, &room.Participants, &room.LastMessageAt, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	room.Type = model.RoomType(typ)
	return &room, nil
}
