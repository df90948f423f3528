package realtime

import (
	"errors"
	"testing"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/domain/model"
	"collab-realtime/internal/infra/logging"
	"collab-realtime/internal/realtime/wire"
)

type fakeSender struct {
	frames []*wire.Frame
	err    error
}

func (s *fakeSender) Send(f *wire.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func TestPresencePublishIsOptimistic(t *testing.T) {
	sender := &fakeSender{}
	svc := NewPresenceService("u1", sender, logging.Nop())

	if err := svc.Publish(model.PresenceAway, "lunch"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := svc.Subscribe("u1"); got != model.PresenceAway {
		t.Fatalf("Subscribe(self) = %v, want away", got)
	}
	if len(sender.frames) != 1 || sender.frames[0].Status != "away" || sender.frames[0].StatusMessage != "lunch" {
		t.Fatalf("sent frames = %+v", sender.frames)
	}
}

func TestPresencePublishKeepsLocalValueOnSendFailure(t *testing.T) {
	sender := &fakeSender{err: domain.ErrTransport}
	svc := NewPresenceService("u1", sender, logging.Nop())

	err := svc.Publish(model.PresenceOnline, "")
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("Publish err = %v", err)
	}
	// The optimistic write sticks even though the wire send failed.
	if got := svc.Subscribe("u1"); got != model.PresenceOnline {
		t.Fatalf("Subscribe(self) = %v, want online", got)
	}
}

func TestPresenceUnknownUserIsOffline(t *testing.T) {
	svc := NewPresenceService("u1", &fakeSender{}, logging.Nop())
	if got := svc.Subscribe("stranger"); got != model.PresenceOffline {
		t.Fatalf("Subscribe(unknown) = %v, want offline", got)
	}
	if _, ok := svc.Record("stranger"); ok {
		t.Fatal("Record(unknown) reported a record")
	}
}

func TestPresenceBroadcastReconciles(t *testing.T) {
	svc := NewPresenceService("u1", &fakeSender{}, logging.Nop())

	var changes []model.PresenceRecord
	svc.OnChange(func(rec model.PresenceRecord) { changes = append(changes, rec) })

	_ = svc.Publish(model.PresenceOnline, "")
	// Server disagrees; its broadcast wins.
	svc.HandleBroadcast("u1", model.PresenceOffline)

	if got := svc.Subscribe("u1"); got != model.PresenceOffline {
		t.Fatalf("Subscribe(self) = %v, want offline after broadcast", got)
	}
	if len(changes) != 2 {
		t.Fatalf("change notifications = %d, want 2", len(changes))
	}

	svc.HandleBroadcast("", model.PresenceOnline) // ignored
	if len(changes) != 2 {
		t.Fatal("broadcast with empty user id applied")
	}
}
