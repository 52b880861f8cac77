package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentverse/gatekeeper/internal/users/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Upsert(ctx context.Context, subjectID, displayName, email string) (domain.User, error) {
	const q = `
		INSERT INTO users (subject_id, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id)
		DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email, updated_at = now()
		RETURNING subject_id, display_name, email, created_at, updated_at`
	var u domain.User
	err := r.pool.QueryRow(ctx, q, subjectID, displayName, email).
		Scan(&u.SubjectID, &u.DisplayName, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) GetBySubjectID(ctx context.Context, subjectID string) (domain.User, error) {
	const q = `
		SELECT subject_id, display_name, email, created_at, updated_at
		FROM users WHERE subject_id = $1`
	var u domain.User
	err := r.pool.QueryRow(ctx, q, subjectID).
		Scan(&u.SubjectID, &u.DisplayName, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
