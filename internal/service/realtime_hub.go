package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/spark-chat-api/internal/dto"
)

const (
	closeCodeSessionReplaced = 4000
	closeCodeUnauthorized    = 4401
)

// RealtimeConn is the part of a websocket connection the gateway drives.
type RealtimeConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// realtimeHub tracks the single live session of each user and the chat rooms
// those sessions joined.
type realtimeHub struct {
	mu    sync.RWMutex
	users map[string]*realtimeClient
	rooms map[string]map[*realtimeClient]struct{}
	log   zerolog.Logger
}

type realtimeClient struct {
	sessionID string
	userID    string
	epoch     int64
	conn      RealtimeConn
	send      chan dto.RealtimeEvent
	kick      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	kickOnce  sync.Once
	displaced atomic.Bool
	rooms     map[string]struct{}
	log       zerolog.Logger
}

func newRealtimeHub(logger zerolog.Logger) *realtimeHub {
	return &realtimeHub{
		users: make(map[string]*realtimeClient),
		rooms: make(map[string]map[*realtimeClient]struct{}),
		log:   logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// claim registers c as the user's session and returns the session it replaced.
// When the current session carries a newer epoch, c is not registered and c
// itself is returned.
func (h *realtimeHub) claim(c *realtimeClient) *realtimeClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := h.users[c.userID]
	if previous != nil && c.epoch > 0 && previous.epoch > c.epoch {
		return c
	}
	if previous != nil {
		h.detachLocked(previous)
	}
	h.users[c.userID] = c
	h.log.Debug().Str("user_id", c.userID).Str("session_id", c.sessionID).Int64("epoch", c.epoch).Msg("session registered")
	return previous
}

// displaceOlder removes the user's session when it predates epoch.
func (h *realtimeHub) displaceOlder(userID string, epoch int64) *realtimeClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	holder := h.users[userID]
	if holder == nil || holder.epoch >= epoch {
		return nil
	}
	h.detachLocked(holder)
	delete(h.users, userID)
	return holder
}

// release forgets c and reports whether it was still the user's current session.
func (h *realtimeHub) release(c *realtimeClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := h.users[c.userID] == c
	if current {
		delete(h.users, c.userID)
	}
	h.detachLocked(c)
	return current
}

func (h *realtimeHub) detachLocked(c *realtimeClient) {
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = map[string]struct{}{}
}

func (h *realtimeHub) join(c *realtimeClient, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[c.userID] != c {
		return false
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*realtimeClient]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

func (h *realtimeHub) leave(c *realtimeClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *realtimeHub) inRoom(c *realtimeClient, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.rooms[room][c]
	return ok
}

func (h *realtimeHub) broadcastRoom(room string, event dto.RealtimeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		client.enqueue(event)
	}
}

func (h *realtimeHub) sendUser(userID string, event dto.RealtimeEvent) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client := h.users[userID]
	if client == nil {
		return false
	}
	return client.enqueue(event)
}

func (h *realtimeHub) sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

func (c *realtimeClient) enqueue(event dto.RealtimeEvent) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		c.log.Warn().Str("event", event.Event).Msg("dropping realtime event for slow client")
		return false
	}
}

// displace tells the session it was replaced and asks the writer to close it
// once pending events are flushed.
func (c *realtimeClient) displace(reason string) {
	c.displaced.Store(true)
	c.enqueue(dto.RealtimeEvent{Event: dto.EventForceDisconnect, Data: dto.ForceDisconnect{Reason: reason}})
	c.kickOnce.Do(func() {
		close(c.kick)
	})
}

func (c *realtimeClient) writer(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case event := <-c.send:
			if err := c.write(event, writeWait); err != nil {
				c.log.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-c.kick:
			c.flush(writeWait)
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCodeSessionReplaced, "session replaced"))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.log.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *realtimeClient) write(event dto.RealtimeEvent, writeWait time.Duration) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event)
}

func (c *realtimeClient) flush(writeWait time.Duration) {
	for {
		select {
		case event := <-c.send:
			if err := c.write(event, writeWait); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *realtimeClient) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
