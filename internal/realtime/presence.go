package realtime

import (
	"sync"
	"time"

	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/realtime/wire"

	"github.com/rs/zerolog"
)

// PresenceSender is the outbound half the service publishes through; the
// user channel satisfies it.
type PresenceSender interface {
	Send(f *wire.Frame) error
}

// PresenceService tracks online/away/offline for every user this session can
// see. A local publish is applied optimistically before the server confirms
// and reconciled on the next broadcast; presence is eventually consistent
// and never strongly ordered.
type PresenceService struct {
	selfID string
	sender PresenceSender
	log    *zerolog.Logger

	mu        sync.RWMutex
	records   map[string]*model.PresenceRecord
	listeners []func(model.PresenceRecord)
}

func NewPresenceService(selfID string, sender PresenceSender, log *zerolog.Logger) *PresenceService {
	return &PresenceService{
		selfID:  selfID,
		sender:  sender,
		log:     log,
		records: make(map[string]*model.PresenceRecord),
	}
}

// Publish sets this user's presence: locally first, then on the wire. A send
// failure keeps the optimistic value; the next broadcast reconciles it.
func (s *PresenceService) Publish(status model.PresenceStatus, statusMessage string) error {
	s.apply(model.PresenceRecord{
		UserID:        s.selfID,
		Status:        status,
		StatusMessage: statusMessage,
		LastSeenAt:    time.Now(),
	})

	err := s.sender.Send(&wire.Frame{
		Type:          wire.TypePresenceUpdate,
		UserID:        s.selfID,
		Status:        string(status),
		StatusMessage: statusMessage,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("presence publish not sent, kept locally")
	}
	return err
}

// Subscribe returns the last known status for a user; unknown users are
// offline.
func (s *PresenceService) Subscribe(userID string) model.PresenceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[userID]; ok {
		return rec.Status
	}
	return model.PresenceOffline
}

// Record returns a copy of a user's full presence record.
func (s *PresenceService) Record(userID string) (model.PresenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return model.PresenceRecord{}, false
	}
	return *rec, true
}

// OnChange registers a listener for every accepted presence change.
func (s *PresenceService) OnChange(fn func(model.PresenceRecord)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// HandleBroadcast is wired as the presence handler of room and user
// channels; server broadcasts overwrite optimistic local state.
func (s *PresenceService) HandleBroadcast(userID string, status model.PresenceStatus) {
	if userID == "" {
		return
	}
	s.apply(model.PresenceRecord{
		UserID:     userID,
		Status:     status,
		LastSeenAt: time.Now(),
	})
}

func (s *PresenceService) apply(rec model.PresenceRecord) {
	s.mu.Lock()
	s.records[rec.UserID] = &rec
	listeners := make([]func(model.PresenceRecord), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(rec)
	}
}
