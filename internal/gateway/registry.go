package gateway

import (
	"sync"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

// roomID qualifies a room key by tenant, so "project:p1" of two tenants
// never collide.
type roomID struct {
	tenantID string
	key      domain.RoomKey
}

// Registry owns room membership for one gateway process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[roomID]map[*conn]struct{}
	conns map[*conn]map[roomID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[roomID]map[*conn]struct{}),
		conns: make(map[*conn]map[roomID]struct{}),
	}
}

// Join adds c to a room inside its own tenant. Only authenticated
// connections can hold rooms. The state is read under the lock: close marks
// c disconnected before RemoveAll takes it, so a Join racing close either
// loses or is undone by RemoveAll.
func (r *Registry) Join(c *conn, key domain.RoomKey) bool {
	id := roomID{tenantID: c.identity.TenantID, key: key}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c.State() != StateAuthenticated {
		return false
	}
	members, ok := r.rooms[id]
	if !ok {
		members = make(map[*conn]struct{})
		r.rooms[id] = members
	}
	members[c] = struct{}{}
	joined, ok := r.conns[c]
	if !ok {
		joined = make(map[roomID]struct{})
		r.conns[c] = joined
	}
	joined[id] = struct{}{}
	return true
}

func (r *Registry) Leave(c *conn, key domain.RoomKey) {
	id := roomID{tenantID: c.identity.TenantID, key: key}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c, id)
	if joined := r.conns[c]; len(joined) == 0 {
		delete(r.conns, c)
	}
}

// RemoveAll drops every membership of c. It returns once c is unreachable
// from Deliver.
func (r *Registry) RemoveAll(c *conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.conns[c] {
		r.removeLocked(c, id)
	}
	delete(r.conns, c)
}

func (r *Registry) removeLocked(c *conn, id roomID) {
	if members, ok := r.rooms[id]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, id)
		}
	}
	if joined, ok := r.conns[c]; ok {
		delete(joined, id)
	}
}

// Rooms lists the room keys c currently holds.
func (r *Registry) Rooms(c *conn) []domain.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomKey, 0, len(r.conns[c]))
	for id := range r.conns[c] {
		out = append(out, id.key)
	}
	return out
}

// Deliver broadcasts event to every room it routes to, looked up inside the
// event's tenant only. Each recipient's tenant is checked again before the
// frame is queued. It returns the number of connections reached.
func (r *Registry) Deliver(event domain.DomainEvent, frame []byte) int {
	if event.TenantID == "" {
		return 0
	}
	recipients := make(map[*conn]struct{})

	r.mu.RLock()
	for _, key := range domain.RoutesFor(event) {
		for c := range r.rooms[roomID{tenantID: event.TenantID, key: key}] {
			recipients[c] = struct{}{}
		}
	}
	r.mu.RUnlock()

	sent := 0
	for c := range recipients {
		if c.identity.TenantID != event.TenantID {
			continue
		}
		if c.enqueue(frame) {
			sent++
		}
	}
	return sent
}

type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Connections: len(r.conns), Rooms: len(r.rooms)}
}
