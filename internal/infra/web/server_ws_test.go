package web

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"collab-realtime/internal/infra/logging"
	"collab-realtime/internal/infra/ws"
	"collab-realtime/internal/realtime/wire"

	"github.com/gorilla/websocket"
)

// fanoutBus satisfies both the handlers' Publisher and the hub's EventBus,
// delivering frames to in-process subscribers.
type fanoutBus struct {
	mu   sync.Mutex
	subs map[string][]func(*wire.Frame)
}

func newFanoutBus() *fanoutBus {
	return &fanoutBus{subs: make(map[string][]func(*wire.Frame))}
}

func (b *fanoutBus) Publish(subject string, f *wire.Frame) error {
	b.mu.Lock()
	handlers := append([]func(*wire.Frame){}, b.subs[subject]...)
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(f)
	}
	return nil
}

func (b *fanoutBus) Subscribe(subject string, fn func(*wire.Frame)) (func(), error) {
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], fn)
	b.mu.Unlock()
	return func() {}, nil
}

func (b *fanoutBus) waitSubscribed(t *testing.T, subject string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		n := len(b.subs[subject])
		b.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on %s", subject)
}

// The push endpoints are registered behind the full middleware stack, so the
// logging wrapper has to keep the connection hijackable for upgrades.
func TestRouterServesWebsocketUpgrades(t *testing.T) {
	jobs := newMemJobRepo()
	presence := newMemPresenceRepo()
	b := newFanoutBus()
	tokens := ws.NewTokenManager("test-secret", time.Hour)
	hub := ws.NewHub(b, jobs, presence, tokens, 30*time.Second, logging.Nop())

	s := NewServer(jobs, newMemRoomRepo(), newMemMessageRepo(), presence, b, tokens, hub, logging.Nop())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	token, err := tokens.Mint("u1")
	if err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/user?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial through production router failed: %v", err)
	}
	defer conn.Close()

	// End to end: a frame published on the user subject reaches the socket.
	b.waitSubscribed(t, "users.u1")
	if err := b.Publish("users.u1", &wire.Frame{Type: wire.TypeNewMessage, RoomID: "room-1"}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wire.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Type != wire.TypeNewMessage || f.RoomID != "room-1" {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestRouterServesJobProgressUpgrade(t *testing.T) {
	jobs := newMemJobRepo()
	b := newFanoutBus()
	tokens := ws.NewTokenManager("test-secret", time.Hour)
	hub := ws.NewHub(b, jobs, newMemPresenceRepo(), tokens, 30*time.Second, logging.Nop())

	s := NewServer(jobs, newMemRoomRepo(), newMemMessageRepo(), newMemPresenceRepo(), b, tokens, hub, logging.Nop())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	token, err := tokens.Mint("u1")
	if err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/job-progress/job-1?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial through production router failed: %v", err)
	}
	defer conn.Close()

	b.waitSubscribed(t, "jobs.job-1")
	if err := b.Publish("jobs.job-1", &wire.Frame{Type: wire.TypeJobProgress, JobID: "job-1", Progress: 0.5}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wire.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Type != wire.TypeJobProgress || f.Progress != 0.5 {
		t.Fatalf("unexpected frame %+v", f)
	}
}
