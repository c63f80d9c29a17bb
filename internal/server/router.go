package server

import (
	"sync"

	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/sirupsen/logrus"
)

// Endpoint is a live connection that can receive server messages.
type Endpoint interface {
	Id() string
	// Send queues msg for delivery without blocking and reports whether it
	// was accepted.
	Send(msg *ServerMessage) bool
	Close()
}

// Router fans room-scoped events out to the endpoints seated in a room. It
// reads membership from the registry and never mutates it.
type Router struct {
	log       *logrus.Logger
	registry  *Registry
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

func NewRouter(logger *logrus.Logger, registry *Registry) *Router {
	return &Router{
		log:       logger,
		registry:  registry,
		endpoints: make(map[string]Endpoint),
	}
}

func (rt *Router) Add(e Endpoint) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.endpoints[e.Id()] = e
}

func (rt *Router) Remove(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.endpoints, id)
}

func (rt *Router) Len() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.endpoints)
}

// Endpoints returns a copy of the registered endpoints.
func (rt *Router) Endpoints() []Endpoint {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	out := make([]Endpoint, 0, len(rt.endpoints))
	for _, e := range rt.endpoints {
		out = append(out, e)
	}
	return out
}

// SendTo delivers msg to a single connection.
func (rt *Router) SendTo(id string, msg *ServerMessage) bool {
	rt.mu.RLock()
	e, ok := rt.endpoints[id]
	rt.mu.RUnlock()

	if !ok {
		return false
	}
	return e.Send(msg)
}

// Deliver sends msg to every recipient except the one named by excluding and
// returns the number of endpoints that accepted it.
func (rt *Router) Deliver(recipients []string, msg *ServerMessage, excluding string) int {
	rt.mu.RLock()
	targets := make([]Endpoint, 0, len(recipients))
	for _, id := range recipients {
		if id == excluding {
			continue
		}
		if e, ok := rt.endpoints[id]; ok {
			targets = append(targets, e)
		}
	}
	rt.mu.RUnlock()

	delivered := 0
	for _, e := range targets {
		if e.Send(msg) {
			delivered++
		} else {
			rt.log.WithFields(logrus.Fields{"conn_id": e.Id(), "event": msg.Event}).Warn("send queue full, dropping message")
		}
	}
	return delivered
}

// ToRoom delivers an event to the current members of roomId, optionally
// skipping the originating connection.
func (rt *Router) ToRoom(roomId, event string, payload any, excluding string) int {
	return rt.Deliver(rt.registry.MemberIds(roomId), Push(event, payload), excluding)
}

func (rt *Router) UserCount(roomId string) int {
	return len(rt.registry.MemberIds(roomId))
}

func (rt *Router) UserList(roomId string) []types.UserInfo {
	users, _ := rt.registry.Members(roomId)
	if users == nil {
		users = []types.UserInfo{}
	}
	return users
}

// BroadcastPresence sends userCount and userList to every member of roomId.
func (rt *Router) BroadcastPresence(roomId string) {
	users := rt.UserList(roomId)
	recipients := make([]string, len(users))
	for i, u := range users {
		recipients[i] = u.Id
	}

	rt.Deliver(recipients, Push(EventUserCount, UserCount{Count: len(users)}), "")
	rt.Deliver(recipients, Push(EventUserList, users), "")
}
