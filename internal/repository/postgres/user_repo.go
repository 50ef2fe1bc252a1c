package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulsechat/internal/domain"
)

const userColumns = "id, name, image, online, last_active, created_at"

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, name, image, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Image, user.CreatedAt); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, user.ID)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id), &u)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id, name, image string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET name = $1, image = $2 WHERE id = $3`, name, image, id)
	return err
}

func (r *UserRepo) ListRecent(ctx context.Context, excludeID string, limit int) ([]domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id <> $1
		ORDER BY last_active DESC NULLS LAST, id
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET online = $1, last_active = $2 WHERE id = $3`, online, at, id)
	return err
}

func (r *UserRepo) ResetPresence(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET online = FALSE WHERE online`)
	return err
}

func scanUser(row pgx.Row, u *domain.User) error {
	return row.Scan(&u.ID, &u.Name, &u.Image, &u.Online, &u.LastActive, &u.CreatedAt)
}
