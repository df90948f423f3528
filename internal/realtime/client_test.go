package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/infra/logging"
)

func TestClientOpenRoomEnforcesOnePerRoom(t *testing.T) {
	userConn := newFakeConn()
	roomConn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{userConn, roomConn}}

	c := NewClient("u1", newFakeAPI(), dialer, testDeliveryConfig(), UserHandlers{}, logging.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.OpenRoom(context.Background(), "room-1", RoomHandlers{}); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}
	if _, err := c.OpenRoom(context.Background(), "room-1", RoomHandlers{}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second OpenRoom err = %v, want ErrAlreadyExists", err)
	}
}

func TestClientOpenRoomConcurrentSameRoom(t *testing.T) {
	userConn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{userConn, newFakeConn(), newFakeConn()}}

	c := NewClient("u1", newFakeAPI(), dialer, testDeliveryConfig(), UserHandlers{}, logging.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.OpenRoom(context.Background(), "room-1", RoomHandlers{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var opened, refused int
	for err := range errs {
		switch {
		case err == nil:
			opened++
		case errors.Is(err, domain.ErrAlreadyExists):
			refused++
		default:
			t.Fatalf("unexpected OpenRoom err: %v", err)
		}
	}
	if opened != 1 || refused != 1 {
		t.Fatalf("opened = %d, refused = %d; want exactly one of each", opened, refused)
	}
}

func TestClientCloseRoomAllowsReopen(t *testing.T) {
	userConn := newFakeConn()
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{userConn, first, second}}

	c := NewClient("u1", newFakeAPI(), dialer, testDeliveryConfig(), UserHandlers{}, logging.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.OpenRoom(context.Background(), "room-1", RoomHandlers{}); err != nil {
		t.Fatal(err)
	}
	c.CloseRoom("room-1")
	if _, err := c.OpenRoom(context.Background(), "room-1", RoomHandlers{}); err != nil {
		t.Fatalf("reopen after CloseRoom: %v", err)
	}
}

func TestClientCloseEndsSession(t *testing.T) {
	userConn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{userConn}}

	c := NewClient("u1", newFakeAPI(), dialer, testDeliveryConfig(), UserHandlers{}, logging.Nop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Close()

	// The registry refuses new work once the session ended.
	if _, err := c.Jobs.Submit(context.Background(), "q", "s", "conv"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("Submit after Close err = %v, want ErrSessionClosed", err)
	}
}
