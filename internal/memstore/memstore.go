// Package memstore keeps users, channels and messages in process memory.
// It backs the "memory" storage driver and the test suites.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

type Store struct {
	Users    *UserRepository
	Channels *ChannelRepository
	Messages *MessageRepository
}

// New returns an empty store seeded with the default text channel.
func New() *Store {
	s := &Store{
		Users:    &UserRepository{users: make(map[string]domain.User)},
		Channels: &ChannelRepository{channels: make(map[string]domain.Channel)},
		Messages: &MessageRepository{now: time.Now},
	}
	s.Channels.Put(domain.Channel{ID: domain.DefaultChannelID, ServerID: 1, Name: "general", Type: domain.ChannelText})
	return s
}

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func (r *UserRepository) Get(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

// Create inserts or replaces the user.
func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now()
	}
	r.users[u.ID] = *u
	return nil
}

func (r *UserRepository) UpdateStatus(_ context.Context, id string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Status = status
	r.users[id] = u
	return nil
}

func (r *UserRepository) List(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type ChannelRepository struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
}

func (r *ChannelRepository) Put(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	r.channels[ch.ID] = ch
}

func (r *ChannelRepository) Get(_ context.Context, id string) (*domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return &ch, nil
}

func (r *ChannelRepository) LoadWhiteboard(_ context.Context, channelID string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[channelID]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	if len(ch.WhiteboardSnapshot) == 0 {
		return nil, nil
	}
	return append(json.RawMessage(nil), ch.WhiteboardSnapshot...), nil
}

func (r *ChannelRepository) SaveWhiteboard(_ context.Context, channelID string, snapshot json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[channelID]
	if !ok {
		return domain.ErrChannelNotFound
	}
	ch.WhiteboardSnapshot = append(json.RawMessage(nil), snapshot...)
	r.channels[channelID] = ch
	return nil
}

type MessageRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   []domain.Message // ordered by id
	now    func() time.Time
}

func (r *MessageRepository) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	r.rows = append(r.rows, *m)
	return nil
}

func (r *MessageRepository) Get(_ context.Context, id int64) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.index(id); i >= 0 {
		m := r.rows[i]
		return &m, nil
	}
	return nil, domain.ErrMessageNotFound
}

func (r *MessageRepository) Delete(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(id, ""), nil
}

func (r *MessageRepository) DeleteOwned(_ context.Context, id int64, authorID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if authorID == "" {
		return false, nil
	}
	return r.remove(id, authorID), nil
}

func (r *MessageRepository) ListRecent(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].ChannelID == channelID {
			out = append(out, r.rows[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MessageRepository) ListPage(_ context.Context, channelID string, beforeID int64, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.rows[i]
		if m.ChannelID != channelID || (beforeID > 0 && m.ID >= beforeID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *MessageRepository) ListByAuthor(_ context.Context, authorID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].AuthorID == authorID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

func (r *MessageRepository) CountByAuthor(_ context.Context, authorID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.rows {
		if m.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) CountAll(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows), nil
}

func (r *MessageRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for _, m := range r.rows {
		if len(out) >= limit {
			break
		}
		if m.Expired(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MessageRepository) index(id int64) int {
	i := sort.Search(len(r.rows), func(i int) bool { return r.rows[i].ID >= id })
	if i < len(r.rows) && r.rows[i].ID == id {
		return i
	}
	return -1
}

func (r *MessageRepository) remove(id int64, authorID string) bool {
	i := r.index(id)
	if i < 0 {
		return false
	}
	if authorID != "" && r.rows[i].AuthorID != authorID {
		return false
	}
	r.rows = append(r.rows[:i], r.rows[i+1:]...)
	return true
}
