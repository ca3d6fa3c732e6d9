package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"

	"github.com/jackc/pgx/v5"
)

type MessageRepository struct {
	q querier
}

func NewMessageRepository(q querier) *MessageRepository {
	return &MessageRepository{q: q}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	ts := m.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	err := r.q.QueryRow(ctx, queryCreateMessage,
		m.ChannelID,
		m.AuthorID,
		m.AuthorName,
		m.AuthorAvatar,
		m.Text,
		m.FilePath,
		m.FileName,
		m.FileType,
		m.FileSize,
		m.IsLink,
		ts,
		m.ExpireAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return mapMessageError(err)
	}
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := scanMessage(r.q.QueryRow(ctx, queryGetMessage, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return m, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, queryDeleteMessage, id)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepository) DeleteOwned(ctx context.Context, id int64, authorID string) (bool, error) {
	tag, err := r.q.Exec(ctx, queryDeleteOwnMessage, id, authorID)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepository) ListRecent(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	return r.list(ctx, queryListRecentMessage, channelID, limit)
}

func (r *MessageRepository) ListPage(ctx context.Context, channelID string, beforeID int64, limit int) ([]domain.Message, error) {
	return r.list(ctx, queryListPageMessage, channelID, beforeID, limit)
}

func (r *MessageRepository) ListByAuthor(ctx context.Context, authorID string, limit int) ([]domain.Message, error) {
	return r.list(ctx, queryListByAuthor, authorID, limit)
}

func (r *MessageRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	return r.list(ctx, queryListExpired, now, limit)
}

func (r *MessageRepository) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, queryCountByAuthor, authorID).Scan(&n); err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

func (r *MessageRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, queryCountMessages).Scan(&n); err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

func (r *MessageRepository) list(ctx context.Context, sql string, args ...any) ([]domain.Message, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.ChannelID,
		&m.AuthorID,
		&m.AuthorName,
		&m.AuthorAvatar,
		&m.Text,
		&m.FilePath,
		&m.FileName,
		&m.FileType,
		&m.FileSize,
		&m.IsLink,
		&m.CreatedAt,
		&m.ExpireAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// a message for a missing channel fails the foreign key
func mapMessageError(err error) error {
	err = mapPgError(err)
	if errors.Is(err, ErrConstraint) {
		return domain.ErrChannelNotFound
	}
	return err
}
