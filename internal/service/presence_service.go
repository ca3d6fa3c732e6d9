package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/chat-sync/internal/domain"

	"github.com/google/uuid"
)

// PresenceService maps live connections to users and keeps the durable
// online/offline status in line with connectivity. A user stays online
// while at least one of their connections is attached.
type PresenceService struct {
	users UserStore
	bc    Broadcaster

	mu    sync.RWMutex
	conns map[string]string // conn id -> user id
	refs  map[string]int    // user id -> attached connections

	// serialises durable status transitions so an offline write cannot
	// overtake a later online write for the same user
	transition sync.Mutex
}

func NewPresenceService(users UserStore, bc Broadcaster) *PresenceService {
	return &PresenceService{
		users: users,
		bc:    bc,
		conns: make(map[string]string),
		refs:  make(map[string]int),
	}
}

// ResolveIdentity returns the stored user for claimedID, or creates one from
// the claimed name and avatar. Stored name and avatar win over claimed ones.
func (s *PresenceService) ResolveIdentity(ctx context.Context, claimedID, claimedName, claimedAvatar string) (*domain.User, error) {
	claimedID = strings.TrimSpace(claimedID)
	claimedName = strings.TrimSpace(claimedName)
	if claimedID == "" && claimedName == "" {
		return nil, domain.ErrIdentity
	}

	if claimedID != "" {
		u, err := s.users.Get(ctx, claimedID)
		switch {
		case err == nil:
			if u.Status == domain.StatusBanned {
				return nil, domain.ErrForbidden
			}
			return u, nil
		case !errors.Is(err, domain.ErrUserNotFound):
			return nil, fmt.Errorf("get user: %w", err)
		}
	}
	if claimedName == "" {
		return nil, domain.ErrIdentity
	}
	if claimedID == "" {
		claimedID = uuid.NewString()
	}
	if claimedAvatar == "" {
		claimedAvatar = domain.DefaultAvatar(claimedName)
	}

	u := &domain.User{
		ID:        claimedID,
		Name:      claimedName,
		AvatarURL: claimedAvatar,
		Status:    domain.StatusOffline,
		Role:      domain.RoleMember,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	slog.Info("user created", "user_id", u.ID, "name", u.Name)
	return u, nil
}

// Attach binds connID to userID, marks the user online and broadcasts the
// user list to every connection.
func (s *PresenceService) Attach(ctx context.Context, connID, userID string) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	prev, had := s.conns[connID]
	s.mu.Unlock()
	if had && prev == userID {
		return nil
	}

	// the binding is committed only once the user is durably online
	if err := s.users.UpdateStatus(ctx, userID, domain.StatusOnline); err != nil {
		return fmt.Errorf("set online: %w", err)
	}

	s.mu.Lock()
	prevLast := false
	if had {
		prevLast = s.release(prev)
	}
	s.conns[connID] = userID
	s.refs[userID]++
	s.mu.Unlock()

	if prevLast {
		s.setStatus(ctx, prev, domain.StatusOffline)
	}
	s.broadcastUsers(ctx)
	return nil
}

// Detach forgets connID. When it was the user's last connection the user is
// marked offline and the list is rebroadcast. Unknown connections are a no-op.
func (s *PresenceService) Detach(ctx context.Context, connID string) {
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	userID, ok := s.conns[connID]
	delete(s.conns, connID)
	last := false
	if ok {
		last = s.release(userID)
	}
	s.mu.Unlock()

	if !last {
		return
	}
	s.setStatus(ctx, userID, domain.StatusOffline)
	s.broadcastUsers(ctx)
}

func (s *PresenceService) IsAttached(connID string) bool {
	_, ok := s.UserID(connID)
	return ok
}

func (s *PresenceService) UserID(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.conns[connID]
	return id, ok
}

// OnlineCount returns the number of distinct attached users.
func (s *PresenceService) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}

// release drops one reference; callers hold s.mu.
func (s *PresenceService) release(userID string) bool {
	s.refs[userID]--
	if s.refs[userID] > 0 {
		return false
	}
	delete(s.refs, userID)
	return true
}

func (s *PresenceService) setStatus(ctx context.Context, userID string, status domain.UserStatus) {
	if err := s.users.UpdateStatus(ctx, userID, status); err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		slog.Error("presence status update failed", "user_id", userID, "status", status, "err", err)
	}
}

func (s *PresenceService) broadcastUsers(ctx context.Context) {
	users, err := s.users.List(ctx)
	if err != nil {
		slog.Error("presence list users failed", "err", err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	s.bc.EmitGlobal(domain.EventUserStatusUpdate, domain.UserStatusPayload{Users: users})
}
