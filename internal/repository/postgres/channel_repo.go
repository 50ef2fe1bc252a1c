package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

// GetOrCreateDirect relies on the UNIQUE (member1, member2) constraint: two
// racing callers both insert, one wins, both read back the same row.
func (r *ChannelRepo) GetOrCreateDirect(ctx context.Context, members [2]string) (*domain.Channel, error) {
	insert := `
		INSERT INTO channels (id, type, member1, member2, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (member1, member2) DO NOTHING`
	_, err := r.pool.Exec(ctx, insert,
		uuid.New(), domain.ChannelTypeMessaging, members[0], members[1], time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, type, member1, member2, created_at
		FROM channels
		WHERE member1 = $1 AND member2 = $2`
	var ch domain.Channel
	err = scanChannel(r.pool.QueryRow(ctx, query, members[0], members[1]), &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `
		SELECT id, type, member1, member2, created_at
		FROM channels
		WHERE id = $1`
	var ch domain.Channel
	err := scanChannel(r.pool.QueryRow(ctx, query, id), &ch)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func scanChannel(row pgx.Row, ch *domain.Channel) error {
	return row.Scan(&ch.ID, &ch.Type, &ch.Members[0], &ch.Members[1], &ch.CreatedAt)
}
