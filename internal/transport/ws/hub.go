package ws

import (
	"log/slog"
	"sync"
)

// Conn is a registered client connection. Send must not block: it queues
// the message or reports that it was dropped.
type Conn interface {
	ID() string
	Send(msg Message) bool
	Close() error
}

// Hub tracks connections and the groups they joined, and fans events out
// to them. Emits are serialised so every member of a group observes the
// group's events in submission order.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	groups  map[string]map[string]struct{} // group -> conn ids
	members map[string]map[string]struct{} // conn id -> groups

	emitMu sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		conns:   make(map[string]Conn),
		groups:  make(map[string]map[string]struct{}),
		members: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
	if _, ok := h.members[c.ID()]; !ok {
		h.members[c.ID()] = make(map[string]struct{})
	}
}

// Unregister removes the connection from the hub and from every group.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for group := range h.members[connID] {
		h.leaveLocked(connID, group)
	}
	delete(h.members, connID)
	delete(h.conns, connID)
}

// Join adds a registered connection to group. Joining is additive.
func (h *Hub) Join(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	gs, ok := h.groups[group]
	if !ok {
		gs = make(map[string]struct{})
		h.groups[group] = gs
	}
	gs[connID] = struct{}{}
	h.members[connID][group] = struct{}{}
}

func (h *Hub) Leave(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, group)
}

func (h *Hub) leaveLocked(connID, group string) {
	if gs, ok := h.groups[group]; ok {
		delete(gs, connID)
		if len(gs) == 0 {
			delete(h.groups, group)
		}
	}
	if ms, ok := h.members[connID]; ok {
		delete(ms, group)
	}
}

// EmitToGroup delivers the event to every current member of group except
// excludeConnID (empty excludes nobody).
func (h *Hub) EmitToGroup(group, event string, payload any, excludeConnID string) {
	msg := Message{Type: event, Payload: payload}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	for _, c := range h.snapshot(group) {
		if c.ID() == excludeConnID {
			continue
		}
		h.deliver(c, msg)
	}
}

// EmitGlobal delivers the event to every registered connection.
func (h *Hub) EmitGlobal(event string, payload any) {
	msg := Message{Type: event, Payload: payload}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	for _, c := range h.snapshot("") {
		h.deliver(c, msg)
	}
}

func (h *Hub) EmitTo(connID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	h.deliver(c, Message{Type: event, Payload: payload})
}

func (h *Hub) InGroup(connID, group string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.groups[group][connID]
	return ok
}

func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every registered connection; their read loops then run
// the regular disconnect path.
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot("") {
		_ = c.Close()
	}
}

// snapshot copies the members of group, or all connections for "".
func (h *Hub) snapshot(group string) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if group == "" {
		out := make([]Conn, 0, len(h.conns))
		for _, c := range h.conns {
			out = append(out, c)
		}
		return out
	}
	gs := h.groups[group]
	out := make([]Conn, 0, len(gs))
	for id := range gs {
		if c, ok := h.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) deliver(c Conn, msg Message) {
	if !c.Send(msg) {
		slog.Warn("ws send queue full, event dropped", "conn_id", c.ID(), "event", msg.Type)
	}
}
