package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
)

const messageColumns = `id, channel_id, user_id, user_name, user_avatar, text,
	file_path, file_name, file_type, file_size, is_link, timestamp, expire_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type UserRepository struct {
	db *sql.DB
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, avatar, status, role, joined_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

// Create inserts the user or overwrites the stored row with the same id.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now()
	}
	if u.Role == "" {
		u.Role = domain.RoleMember
	}
	if u.Status == "" {
		u.Status = domain.StatusOffline
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, avatar, status, role, joined_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, avatar = excluded.avatar,
			status = excluded.status, role = excluded.role`,
		u.ID, u.Name, u.AvatarURL, string(u.Status), u.Role, millis(u.JoinedAt))
	return err
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, avatar, status, role, joined_at FROM users ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u        domain.User
		status   string
		joinedAt int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.AvatarURL, &status, &u.Role, &joinedAt); err != nil {
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	u.JoinedAt = fromMillis(joinedAt)
	return &u, nil
}

type ChannelRepository struct {
	db *sql.DB
}

func (r *ChannelRepository) Get(ctx context.Context, id string) (*domain.Channel, error) {
	var (
		ch        domain.Channel
		typ       string
		wb        sql.NullString
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, server_id, name, type, whiteboard_data, created_at FROM channels WHERE id = ?`, id,
	).Scan(&ch.ID, &ch.ServerID, &ch.Name, &typ, &wb, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	ch.Type = domain.ChannelType(typ)
	ch.CreatedAt = fromMillis(createdAt)
	if wb.Valid && wb.String != "" {
		ch.WhiteboardSnapshot = json.RawMessage(wb.String)
	}
	return &ch, nil
}

// Upsert creates a channel or renames an existing one. Type is fixed at creation.
func (r *ChannelRepository) Upsert(ctx context.Context, ch domain.Channel) error {
	if ch.ServerID == 0 {
		ch.ServerID = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channels (id, server_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		ch.ID, ch.ServerID, ch.Name, string(ch.Type), millis(time.Now()))
	return err
}

// LoadWhiteboard returns nil when the board was never saved.
func (r *ChannelRepository) LoadWhiteboard(ctx context.Context, channelID string) (json.RawMessage, error) {
	var wb sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT whiteboard_data FROM channels WHERE id = ?`, channelID).Scan(&wb)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	if !wb.Valid || wb.String == "" {
		return nil, nil
	}
	return json.RawMessage(wb.String), nil
}

func (r *ChannelRepository) SaveWhiteboard(ctx context.Context, channelID string, snapshot json.RawMessage) error {
	res, err := r.db.ExecContext(ctx, `UPDATE channels SET whiteboard_data = ? WHERE id = ?`, string(snapshot), channelID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}

type MessageRepository struct {
	db *sql.DB
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	var expireAt any
	if m.ExpireAt != nil {
		expireAt = millis(*m.ExpireAt)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, user_id, user_name, user_avatar, text,
			file_path, file_name, file_type, file_size, is_link, timestamp, expire_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChannelID, m.AuthorID, m.AuthorName, m.AuthorAvatar, m.Text,
		m.FilePath, m.FileName, m.FileType, m.FileSize, m.IsLink, millis(m.CreatedAt), expireAt)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return domain.ErrChannelNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (r *MessageRepository) Get(ctx context.Context, id int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	return m, err
}

func (r *MessageRepository) Delete(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `DELETE FROM messages WHERE id = ?`, id)
}

func (r *MessageRepository) DeleteOwned(ctx context.Context, id int64, authorID string) (bool, error) {
	return r.exec(ctx, `DELETE FROM messages WHERE id = ? AND user_id = ?`, id, authorID)
}

func (r *MessageRepository) ListRecent(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	return r.list(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+` FROM messages WHERE channel_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, channelID, limit)
}

func (r *MessageRepository) ListPage(ctx context.Context, channelID string, beforeID int64, limit int) ([]domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE channel_id = ? AND (? = 0 OR id < ?)
		ORDER BY id DESC LIMIT ?`, channelID, beforeID, beforeID, limit)
}

func (r *MessageRepository) ListByAuthor(ctx context.Context, authorID string, limit int) ([]domain.Message, error) {
	return r.list(ctx, `SELECT `+messageColumns+` FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?`, authorID, limit)
}

func (r *MessageRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE expire_at IS NOT NULL AND expire_at <= ?
		ORDER BY expire_at ASC LIMIT ?`, millis(now), limit)
}

func (r *MessageRepository) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE user_id = ?`, authorID).Scan(&n)
	return n, err
}

func (r *MessageRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM messages`).Scan(&n)
	return n, err
}

func (r *MessageRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
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

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m         domain.Message
		createdAt int64
		expireAt  sql.NullInt64
	)
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
		&createdAt,
		&expireAt,
	)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(createdAt)
	if expireAt.Valid {
		t := fromMillis(expireAt.Int64)
		m.ExpireAt = &t
	}
	return &m, nil
}
