package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.ChannelID, msg.UserID, msg.Text, msg.CreatedAt)
	return err
}

func (r *MessageRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, before *string, limit int) ([]domain.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = `
			SELECT m.id, m.channel_id, m.user_id, m.text, m.created_at
			FROM messages m
			WHERE m.channel_id = $1
				AND (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE channel_id = $1 AND id = $2)
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $3`
		args = []any{channelID, *before, limit}
	} else {
		query = `
			SELECT m.id, m.channel_id, m.user_id, m.text, m.created_at
			FROM messages m
			WHERE m.channel_id = $1
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2`
		args = []any{channelID, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order (query returns DESC)
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
