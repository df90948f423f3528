// File: internal/infra/redis/presence_repo.go
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/domain/ports/repository"
)

var _ repository.PresenceRepository = (*PresenceRepo)(nil)

// PresenceRepo keeps presence records in Redis with a TTL. A user whose
// record expires without an explicit offline publish simply reads as
// offline.
type PresenceRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewPresenceRepo(client RedisClient, ttl time.Duration) *PresenceRepo {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &PresenceRepo{client: client, ttl: ttl}
}

func (p *PresenceRepo) key(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

func (p *PresenceRepo) Set(ctx context.Context, rec *model.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.key(rec.UserID), data, p.ttl)
}

func (p *PresenceRepo) Get(ctx context.Context, userID string) (*model.PresenceRecord, error) {
	data, err := p.client.Get(ctx, p.key(userID))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var rec model.PresenceRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
