package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atvirokodosprendimai/tenantsync/internal/core/domain"
)

func authenticatedConn(r *Registry, tenantID, userID string, queue int) *conn {
	c := newConn(tenantID+"-"+userID, r, queue, slog.New(slog.DiscardHandler))
	c.identity = domain.Identity{TenantID: tenantID, UserID: userID}
	c.state.Store(int32(StateAuthenticated))
	return c
}

func projectEvent(tenantID, projectID string) domain.DomainEvent {
	payload, _ := json.Marshal(domain.ProjectPayload{ProjectID: projectID})
	return domain.DomainEvent{ID: "e1", Type: domain.EventProjectUpdated, TenantID: tenantID, Payload: payload}
}

func TestRegistryQualifiesRoomsByTenant(t *testing.T) {
	r := NewRegistry()
	mine := authenticatedConn(r, "t1", "u1", 4)
	other := authenticatedConn(r, "t2", "u1", 4)
	r.Join(mine, domain.ProjectRoom("p1"))
	r.Join(other, domain.ProjectRoom("p1"))

	assert.Equal(t, 1, r.Deliver(projectEvent("t1", "p1"), []byte("x")))
	assert.Len(t, mine.send, 1)
	assert.Len(t, other.send, 0)

	assert.Equal(t, 0, r.Deliver(projectEvent("", "p1"), []byte("x")))
}

func TestRegistryRejectsUnauthenticatedJoin(t *testing.T) {
	r := NewRegistry()
	c := newConn("c", r, 1, slog.New(slog.DiscardHandler))
	c.identity = domain.Identity{TenantID: "t1", UserID: "u1"}
	assert.False(t, r.Join(c, domain.TenantRoom("t1")))
	assert.Equal(t, Stats{}, r.Stats())
}

func TestClosedConnCannotJoin(t *testing.T) {
	r := NewRegistry()
	c := authenticatedConn(r, "t1", "u1", 4)
	c.close()
	assert.False(t, r.Join(c, domain.ProjectRoom("p1")))
	assert.Equal(t, Stats{}, r.Stats())
	assert.Equal(t, 0, r.Deliver(projectEvent("t1", "p1"), []byte("x")))
}

func TestJoinRacingCloseLeavesNoMembership(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 200; i++ {
		c := authenticatedConn(r, "t1", "u1", 4)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Join(c, domain.ProjectRoom("p1"))
		}()
		go func() {
			defer wg.Done()
			c.close()
		}()
		wg.Wait()
	}
	assert.Equal(t, Stats{}, r.Stats())
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	r := NewRegistry()
	c := authenticatedConn(r, "t1", "u1", 1)
	r.Join(c, domain.ProjectRoom("p1"))
	r.Join(c, domain.UserRoom("u1"))

	assert.Equal(t, 1, r.Deliver(projectEvent("t1", "p1"), []byte("a")))
	assert.Equal(t, 0, r.Deliver(projectEvent("t1", "p1"), []byte("b")))

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, Stats{}, r.Stats())
	assert.Equal(t, 0, r.Deliver(projectEvent("t1", "p1"), []byte("c")))
}
