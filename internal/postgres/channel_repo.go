package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/chat-sync/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ChannelRepository struct {
	q querier
}

func NewChannelRepository(q querier) *ChannelRepository {
	return &ChannelRepository{q: q}
}

func (r *ChannelRepository) Get(ctx context.Context, id string) (*domain.Channel, error) {
	var (
		ch  domain.Channel
		typ string
		wb  []byte
	)
	err := r.q.QueryRow(ctx, queryGetChannel, id).Scan(&ch.ID, &ch.ServerID, &ch.Name, &typ, &wb, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	ch.Type = domain.ChannelType(typ)
	if len(wb) > 0 {
		ch.WhiteboardSnapshot = json.RawMessage(wb)
	}
	return &ch, nil
}

// Upsert creates a channel or renames an existing one. Type is fixed at creation.
func (r *ChannelRepository) Upsert(ctx context.Context, ch domain.Channel) error {
	if ch.ServerID == 0 {
		ch.ServerID = 1
	}
	_, err := r.q.Exec(ctx, queryUpsertChannel, ch.ID, ch.ServerID, ch.Name, string(ch.Type))
	return mapPgError(err)
}

// LoadWhiteboard returns nil when the board was never saved.
func (r *ChannelRepository) LoadWhiteboard(ctx context.Context, channelID string) (json.RawMessage, error) {
	var wb []byte
	err := r.q.QueryRow(ctx, queryLoadWhiteboard, channelID).Scan(&wb)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	if len(wb) == 0 {
		return nil, nil
	}
	return json.RawMessage(wb), nil
}

func (r *ChannelRepository) SaveWhiteboard(ctx context.Context, channelID string, snapshot json.RawMessage) error {
	tag, err := r.q.Exec(ctx, querySaveWhiteboard, channelID, []byte(snapshot))
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChannelNotFound
	}
	return nil
}
