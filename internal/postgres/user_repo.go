package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"

	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	q querier
}

func NewUserRepository(q querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, queryGetUser, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return u, nil
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
	_, err := r.q.Exec(ctx, queryUpsertUser, u.ID, u.Name, u.AvatarURL, string(u.Status), u.Role, u.JoinedAt)
	return mapPgError(err)
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	tag, err := r.q.Exec(ctx, queryUpdateUserStatus, id, string(status))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q.Query(ctx, queryListUsers)
	if err != nil {
		return nil, mapPgError(err)
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

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		status string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.AvatarURL, &status, &u.Role, &u.JoinedAt); err != nil {
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}
