package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

// MessageStore persists channel messages. Create assigns ID and CreatedAt.
// Delete variants report false when no row was removed.
type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id int64) (*domain.Message, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteOwned(ctx context.Context, id int64, authorID string) (bool, error)
	// ListRecent returns the newest limit messages of a channel, oldest first.
	ListRecent(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
	// ListPage returns messages with id < beforeID (0 means no bound), newest first.
	ListPage(ctx context.Context, channelID string, beforeID int64, limit int) ([]domain.Message, error)
	ListByAuthor(ctx context.Context, authorID string, limit int) ([]domain.Message, error)
	CountByAuthor(ctx context.Context, authorID string) (int, error)
	CountAll(ctx context.Context) (int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Message, error)
}

type UserStore interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error
	List(ctx context.Context) ([]domain.User, error)
}

type ChannelStore interface {
	Get(ctx context.Context, id string) (*domain.Channel, error)
	LoadWhiteboard(ctx context.Context, channelID string) (json.RawMessage, error)
	SaveWhiteboard(ctx context.Context, channelID string, snapshot json.RawMessage) error
}

// Broadcaster fans events out to connection groups. Delivery is best effort.
type Broadcaster interface {
	Join(connID, group string)
	Leave(connID, group string)
	EmitToGroup(group, event string, payload any, excludeConnID string)
	EmitGlobal(event string, payload any)
	EmitTo(connID, event string, payload any)
}

// FileRemover deletes uploaded attachment files.
type FileRemover interface {
	Remove(ctx context.Context, path string) error
}

// Identities maps live connections to the user they were attached as.
type Identities interface {
	UserID(connID string) (string, bool)
}
