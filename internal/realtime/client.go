package realtime

import (
	"context"
	"fmt"
	"sync"

	"collab-realtime/internal/config"
	"collab-realtime/internal/domain"

	"github.com/rs/zerolog"
)

// Client is one user's realtime session: the delivery registry, the scope
// guard, the job manager, the per-user channel and the set of open room
// channels. Created at login, closed at logout; nothing here is ambient
// state.
type Client struct {
	UserID   string
	Jobs     *JobManager
	Guard    *ScopeGuard
	Registry *DeliveryRegistry
	User     *UserChannel
	Presence *PresenceService

	dialer Dialer
	cfg    config.DeliveryConfig
	log    *zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*RoomChannel
}

func NewClient(userID string, api JobAPI, dialer Dialer, cfg config.DeliveryConfig, handlers UserHandlers, log *zerolog.Logger) *Client {
	reg := NewDeliveryRegistry()
	guard := NewScopeGuard(log)

	c := &Client{
		UserID:   userID,
		Guard:    guard,
		Registry: reg,
		dialer:   dialer,
		cfg:      cfg,
		log:      log,
		rooms:    make(map[string]*RoomChannel),
	}
	c.Jobs = NewJobManager(api, dialer, reg, guard, cfg, log)

	user := NewUserChannel(dialer, cfg, handlers, log)
	c.User = user
	c.Presence = NewPresenceService(userID, user, log)
	return c
}

// Connect opens the per-user channel.
func (c *Client) Connect(ctx context.Context) error {
	return c.User.Open(ctx)
}

// OpenRoom opens a room channel, enforcing at most one per room.
func (c *Client) OpenRoom(ctx context.Context, roomID string, handlers RoomHandlers) (*RoomChannel, error) {
	c.mu.Lock()
	if _, ok := c.rooms[roomID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: room %s already open", domain.ErrAlreadyExists, roomID)
	}
	c.mu.Unlock()

	if handlers.OnPresence == nil {
		handlers.OnPresence = c.Presence.HandleBroadcast
	}
	ch := NewRoomChannel(roomID, c.dialer, c.cfg, handlers, c.log)
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}

	// A concurrent OpenRoom may have won the dial race; the loser's channel
	// is torn down rather than overwriting the one already registered.
	c.mu.Lock()
	if _, ok := c.rooms[roomID]; ok {
		c.mu.Unlock()
		ch.Close()
		return nil, fmt.Errorf("%w: room %s already open", domain.ErrAlreadyExists, roomID)
	}
	c.rooms[roomID] = ch
	c.mu.Unlock()
	return ch, nil
}

// CloseRoom tears down one room channel; the user navigated away.
func (c *Client) CloseRoom(roomID string) {
	c.mu.Lock()
	ch, ok := c.rooms[roomID]
	delete(c.rooms, roomID)
	c.mu.Unlock()
	if ok {
		ch.Close()
	}
}

// Close ends the session: every channel down, the registry closed.
func (c *Client) Close() {
	c.mu.Lock()
	rooms := make([]*RoomChannel, 0, len(c.rooms))
	for _, ch := range c.rooms {
		rooms = append(rooms, ch)
	}
	c.rooms = make(map[string]*RoomChannel)
	c.mu.Unlock()

	for _, ch := range rooms {
		ch.Close()
	}
	c.User.Close()
	c.Jobs.Close()
	c.Registry.Close()
}
