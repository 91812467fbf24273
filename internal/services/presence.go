package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/whisperline/whisperline-backend/internal/database"
)

// ChatConn is the minimal interface our WebSocket implementation must satisfy.
type ChatConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// room is the set of live connections bound to one username. The mutex is
// held across the write loop so a concurrent Bind cannot miss a delivery and
// writes to a single connection keep the order Deliver calls were issued in.
type room struct {
	mu    sync.Mutex
	conns map[ChatConn]struct{}
}

// PresenceRouter maps usernames to their live connections. A user may have
// zero or many simultaneously bound connections (multi-tab).
type PresenceRouter struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewPresenceRouter() *PresenceRouter {
	return &PresenceRouter{rooms: make(map[string]*room)}
}

func (p *PresenceRouter) getRoom(username string) *room {
	p.mu.Lock()
	defer p.mu.Unlock()
	rm, ok := p.rooms[username]
	if !ok {
		rm = &room{conns: make(map[ChatConn]struct{})}
		p.rooms[username] = rm
	}
	return rm
}

// Bind associates conn with username's room and returns an idempotent unbind
// function. Unbinding removes only this connection; other tabs stay bound.
func (p *PresenceRouter) Bind(username string, conn ChatConn) func() {
	rm := p.getRoom(username)

	rm.mu.Lock()
	rm.conns[conn] = struct{}{}
	rm.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			rm.mu.Lock()
			delete(rm.conns, conn)
			empty := len(rm.conns) == 0
			rm.mu.Unlock()

			if empty {
				p.mu.Lock()
				// Re-check under the hub lock; a new tab may have bound.
				rm.mu.Lock()
				if len(rm.conns) == 0 {
					delete(p.rooms, username)
				}
				rm.mu.Unlock()
				p.mu.Unlock()
			}
		})
	}
}

// Deliver sends event to every connection currently bound to username's room
// and reports whether at least one connection received it. A false return
// means the recipient is offline and the caller must queue.
func (p *PresenceRouter) Deliver(username string, event interface{}) bool {
	p.mu.Lock()
	rm, ok := p.rooms[username]
	p.mu.Unlock()
	if !ok {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	delivered := false
	for conn := range rm.conns {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("error writing event to websocket: %v", err)
			delete(rm.conns, conn)
			continue
		}
		delivered = true
	}
	return delivered
}

// Online reports whether username has at least one bound connection.
func (p *PresenceRouter) Online(username string) bool {
	p.mu.Lock()
	rm, ok := p.rooms[username]
	p.mu.Unlock()
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.conns) > 0
}

const (
	presenceKeyPrefix = "presence:"
	presenceTTL       = 120 * time.Second
)

// SetUserPresence refreshes the Redis online marker for username. The marker
// expires on its own, so a dead connection just ages out.
func SetUserPresence(ctx context.Context, username string) {
	if database.RedisClient == nil {
		return
	}
	_ = database.RedisClient.Set(ctx, presenceKeyPrefix+username, "online", presenceTTL).Err()
}

// IsUserOnline checks the Redis online marker for username. Used by the user
// list; live delivery decisions go through the router, not this marker.
func IsUserOnline(ctx context.Context, username string) bool {
	if database.RedisClient == nil {
		return false
	}
	n, err := database.RedisClient.Exists(ctx, presenceKeyPrefix+username).Result()
	return err == nil && n > 0
}
