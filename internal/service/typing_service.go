package service

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
	"github.com/cwrk-planet/chat-sync/internal/scheduler"
)

type typingKey struct {
	channelID string
	userID    string
}

func (k typingKey) String() string { return "typing|" + k.channelID + "|" + k.userID }

type typingEpisode struct {
	connID   string
	userName string
}

// TypingService relays typing indicators. An episode ends on an explicit
// stop, a sent message, a disconnect, or when the TTL passes without a
// renewed start.
type TypingService struct {
	ids    Identities
	bc     Broadcaster
	timers *scheduler.Debouncer
	ttl    time.Duration

	mu     sync.Mutex
	active map[typingKey]typingEpisode
}

func NewTypingService(ids Identities, bc Broadcaster, ttl time.Duration) *TypingService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &TypingService{
		ids:    ids,
		bc:     bc,
		timers: scheduler.NewDebouncer(),
		ttl:    ttl,
		active: make(map[typingKey]typingEpisode),
	}
}

// StartTyping tells the channel, minus the sender, that the user is typing
// and (re)arms the episode timeout.
func (s *TypingService) StartTyping(_ context.Context, connID, channelID, userName string) error {
	userID, ok := s.ids.UserID(connID)
	if !ok {
		return domain.ErrUnauthenticated
	}
	key := typingKey{channelID: domain.ChannelOrDefault(channelID), userID: userID}

	s.mu.Lock()
	s.active[key] = typingEpisode{connID: connID, userName: userName}
	s.mu.Unlock()

	s.bc.EmitToGroup(key.channelID, domain.EventUserTyping, domain.TypingPayload{
		UserID:    userID,
		UserName:  userName,
		ChannelID: key.channelID,
	}, connID)
	s.timers.Schedule(key.String(), s.ttl, func() { s.timeout(key, connID) })
	return nil
}

// StopTyping ends the user's episode in the channel.
func (s *TypingService) StopTyping(_ context.Context, connID, channelID string) error {
	userID, ok := s.ids.UserID(connID)
	if !ok {
		return domain.ErrUnauthenticated
	}
	s.EndTyping(domain.ChannelOrDefault(channelID), userID, connID)
	return nil
}

// EndTyping cancels the episode timer and emits userStopTyping to the channel
// without excludeConnID.
func (s *TypingService) EndTyping(channelID, userID, excludeConnID string) {
	key := typingKey{channelID: channelID, userID: userID}
	s.timers.Cancel(key.String())
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
	s.emitStop(key, excludeConnID)
}

// ClearConnection ends every episode started from connID.
func (s *TypingService) ClearConnection(connID string) int {
	var keys []typingKey
	s.mu.Lock()
	for k, ep := range s.active {
		if ep.connID == connID {
			keys = append(keys, k)
			delete(s.active, k)
		}
	}
	s.mu.Unlock()

	for _, k := range keys {
		s.timers.Cancel(k.String())
		s.emitStop(k, connID)
	}
	return len(keys)
}

// Typing reports whether the user has an open episode in the channel.
func (s *TypingService) Typing(channelID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[typingKey{channelID: channelID, userID: userID}]
	return ok
}

func (s *TypingService) Close() { s.timers.Stop() }

func (s *TypingService) timeout(key typingKey, connID string) {
	s.mu.Lock()
	ep, ok := s.active[key]
	if ok && ep.connID == connID {
		delete(s.active, key)
	}
	s.mu.Unlock()
	if ok && ep.connID == connID {
		s.emitStop(key, connID)
	}
}

func (s *TypingService) emitStop(key typingKey, excludeConnID string) {
	s.bc.EmitToGroup(key.channelID, domain.EventUserStopTyping, domain.TypingPayload{
		UserID:    key.userID,
		ChannelID: key.channelID,
	}, excludeConnID)
}
