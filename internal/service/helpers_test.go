package service

import (
	"context"
	"sync"

	"github.com/cwrk-planet/chat-sync/internal/memstore"
)

type emitted struct {
	Group   string // "" for global, "conn:<id>" for direct
	Event   string
	Payload any
	Exclude string
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []emitted
	joins  map[string][]string
}

func newRecorder() *recordingBroadcaster {
	return &recordingBroadcaster{joins: make(map[string][]string)}
}

func (r *recordingBroadcaster) Join(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins[group] = append(r.joins[group], connID)
}

func (r *recordingBroadcaster) Leave(string, string) {}

func (r *recordingBroadcaster) EmitToGroup(group, event string, payload any, exclude string) {
	r.record(emitted{Group: group, Event: event, Payload: payload, Exclude: exclude})
}

func (r *recordingBroadcaster) EmitGlobal(event string, payload any) {
	r.record(emitted{Event: event, Payload: payload})
}

func (r *recordingBroadcaster) EmitTo(connID, event string, payload any) {
	r.record(emitted{Group: "conn:" + connID, Event: event, Payload: payload})
}

func (r *recordingBroadcaster) record(e emitted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingBroadcaster) byEvent(event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingBroadcaster) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	store    *memstore.Store
	bc       *recordingBroadcaster
	presence *PresenceService
}

func newFixture() *fixture {
	store := memstore.New()
	bc := newRecorder()
	return &fixture{store: store, bc: bc, presence: NewPresenceService(store.Users, bc)}
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeRemover) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}
