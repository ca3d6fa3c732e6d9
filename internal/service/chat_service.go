package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

const (
	defaultHistoryLimit = 100
	defaultPageLimit    = 50
	maxPageLimit        = 100
)

// ChatService owns the message lifecycle: send, upload, delete, expire and
// history. Every state change is persisted before it is broadcast.
type ChatService struct {
	messages MessageStore
	users    UserStore
	channels ChannelStore
	ids      Identities
	bc       Broadcaster

	files  FileRemover
	typing *TypingService

	historyLimit int
	maxLen       int
	now          func() time.Time
}

func NewChatService(messages MessageStore, users UserStore, channels ChannelStore, ids Identities, bc Broadcaster) *ChatService {
	return &ChatService{
		messages:     messages,
		users:        users,
		channels:     channels,
		ids:          ids,
		bc:           bc,
		historyLimit: defaultHistoryLimit,
		maxLen:       4000,
		now:          time.Now,
	}
}

func (s *ChatService) SetFileRemover(f FileRemover)  { s.files = f }
func (s *ChatService) SetTyping(t *TypingService)    { s.typing = t }
func (s *ChatService) SetClock(now func() time.Time) { s.now = now }

func (s *ChatService) SetLimits(historyLimit, maxLen int) {
	if historyLimit > 0 {
		s.historyLimit = historyLimit
	}
	if maxLen > 0 {
		s.maxLen = maxLen
	}
}

// Send persists a text message from the user attached to connID and
// broadcasts it to the channel, sender included.
func (s *ChatService) Send(ctx context.Context, connID, channelID, text string, expireMinutes int) (*domain.Message, error) {
	userID, ok := s.ids.UserID(connID)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrMalformedPayload)
	}
	if len(text) > s.maxLen {
		return nil, fmt.Errorf("%w: message too long", domain.ErrMalformedPayload)
	}
	return s.publish(ctx, connID, userID, domain.ChannelOrDefault(channelID), text, nil, expireMinutes)
}

// AttachUpload persists and broadcasts a message that references an
// already stored file.
func (s *ChatService) AttachUpload(ctx context.Context, connID, channelID string, att domain.Attachment, expireMinutes int) (*domain.Message, error) {
	userID, ok := s.ids.UserID(connID)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	if att.FilePath == "" {
		return nil, fmt.Errorf("%w: file path is required", domain.ErrMalformedPayload)
	}
	return s.publish(ctx, connID, userID, domain.ChannelOrDefault(channelID), "", &att, expireMinutes)
}

// PersistUpload stores an attachment message without broadcasting it. The
// uploader announces it afterwards over its connection.
func (s *ChatService) PersistUpload(ctx context.Context, userID, channelID string, att domain.Attachment, expireMinutes int) (*domain.Message, error) {
	if att.FilePath == "" {
		return nil, fmt.Errorf("%w: file path is required", domain.ErrMalformedPayload)
	}
	return s.persist(ctx, userID, domain.ChannelOrDefault(channelID), "", &att, expireMinutes)
}

// AnnounceUpload broadcasts a previously persisted upload. Only its author
// may announce it.
func (s *ChatService) AnnounceUpload(ctx context.Context, connID string, messageID int64) (*domain.Message, error) {
	userID, ok := s.ids.UserID(connID)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.AuthorID != userID {
		return nil, domain.ErrForbidden
	}
	if !m.HasFile() {
		return nil, fmt.Errorf("%w: message %d has no attachment", domain.ErrMalformedPayload, messageID)
	}
	s.bc.EmitToGroup(m.ChannelID, domain.EventNewMessage, m, "")
	return m, nil
}

// DeleteOwn removes a message authored by the user attached to connID.
// Missing messages and foreign messages both report false.
func (s *ChatService) DeleteOwn(ctx context.Context, connID string, messageID int64) (bool, error) {
	userID, ok := s.ids.UserID(connID)
	if !ok {
		return false, domain.ErrUnauthenticated
	}
	m, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get message: %w", err)
	}
	if m.AuthorID != userID {
		slog.Warn("delete of foreign message refused", "message_id", messageID, "user_id", userID)
		return false, nil
	}
	deleted, err := s.messages.DeleteOwned(ctx, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	if deleted {
		s.announceDeleted(ctx, m)
	}
	return deleted, nil
}

// DeleteModerated removes any message regardless of author.
func (s *ChatService) DeleteModerated(ctx context.Context, messageID int64) (bool, error) {
	m, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get message: %w", err)
	}
	deleted, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	if deleted {
		s.announceDeleted(ctx, m)
	}
	return deleted, nil
}

// Expire deletes a message reported as expired by a client, provided its
// stored expiry has passed on the server clock. The broadcast goes to the
// stored channel.
func (s *ChatService) Expire(ctx context.Context, messageID int64, channelID string) (bool, error) {
	m, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get message: %w", err)
	}
	if !m.Expired(s.now()) {
		slog.Warn("premature expiry report ignored", "message_id", messageID, "channel_id", channelID)
		return false, nil
	}
	deleted, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	if deleted {
		s.announceDeleted(ctx, m)
	}
	return deleted, nil
}

// SweepExpired deletes up to limit messages whose expiry has passed and
// announces each deletion.
func (s *ChatService) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.messages.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	n := 0
	for i := range expired {
		m := &expired[i]
		deleted, err := s.messages.Delete(ctx, m.ID)
		if err != nil {
			return n, fmt.Errorf("delete message %d: %w", m.ID, err)
		}
		if deleted {
			s.announceDeleted(ctx, m)
			n++
		}
	}
	return n, nil
}

// History returns the newest limit messages of a channel in chronological
// order. A non-positive limit means the configured replay size.
func (s *ChatService) History(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	msgs, err := s.messages.ListRecent(ctx, domain.ChannelOrDefault(channelID), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// HistoryPage walks a channel backwards from cursor, newest first. The
// returned cursor is empty on the last page.
func (s *ChatService) HistoryPage(ctx context.Context, channelID, cursor string, limit int) ([]domain.Message, string, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	c, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	var before int64
	if c != nil {
		before = c.ID
	}

	msgs, err := s.messages.ListPage(ctx, channelID, before, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list page: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	if len(msgs) < limit {
		return msgs, "", nil
	}
	last := msgs[len(msgs)-1]
	next, err := EncodeCursor(Cursor{ID: last.ID, CreatedAt: last.CreatedAt})
	if err != nil {
		return nil, "", err
	}
	return msgs, next, nil
}

// UserStats reports message counts for the admin surface. An empty userID
// counts only the total.
func (s *ChatService) UserStats(ctx context.Context, userID string) (total, byUser int, err error) {
	total, err = s.messages.CountAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("count messages: %w", err)
	}
	if userID == "" {
		return total, 0, nil
	}
	byUser, err = s.messages.CountByAuthor(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("count user messages: %w", err)
	}
	return total, byUser, nil
}

func (s *ChatService) UserMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	msgs, err := s.messages.ListByAuthor(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (s *ChatService) publish(ctx context.Context, connID, userID, channelID, text string, att *domain.Attachment, expireMinutes int) (*domain.Message, error) {
	m, err := s.persist(ctx, userID, channelID, text, att, expireMinutes)
	if err != nil {
		return nil, err
	}
	s.bc.EmitToGroup(channelID, domain.EventNewMessage, m, "")
	if s.typing != nil {
		s.typing.EndTyping(channelID, userID, connID)
	}
	return m, nil
}

func (s *ChatService) persist(ctx context.Context, userID, channelID, text string, att *domain.Attachment, expireMinutes int) (*domain.Message, error) {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.Status == domain.StatusBanned {
		return nil, domain.ErrForbidden
	}
	if _, err := s.channels.Get(ctx, channelID); err != nil {
		return nil, err
	}

	now := s.now()
	m := &domain.Message{
		ChannelID:    channelID,
		AuthorID:     u.ID,
		AuthorName:   u.Name,
		AuthorAvatar: u.AvatarURL,
		Text:         text,
		IsLink:       domain.IsLinkText(text),
		CreatedAt:    now,
		ExpireAt:     domain.ExpireAtFor(now, expireMinutes),
	}
	if att != nil {
		m.SetAttachment(*att)
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	return m, nil
}

func (s *ChatService) announceDeleted(ctx context.Context, m *domain.Message) {
	s.bc.EmitToGroup(m.ChannelID, domain.EventMessageDeleted, domain.MessageDeletedPayload{MessageID: m.ID}, "")
	if !m.HasFile() || s.files == nil {
		return
	}
	if err := s.files.Remove(ctx, *m.FilePath); err != nil {
		slog.Warn("attachment removal failed", "message_id", m.ID, "path", *m.FilePath, "err", err)
	}
}
