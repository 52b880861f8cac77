package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository holds the two store queries the authorization engine
// needs on a cache miss.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GroupIDsForAgent returns the ids of every group the agent is assigned to.
func (r *PostgresRepository) GroupIDsForAgent(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT group_id FROM group_agents WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("group ids for agent: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MembershipRoles returns the subject's roles across the given groups,
// optionally restricted to admin memberships.
func (r *PostgresRepository) MembershipRoles(ctx context.Context, subjectID string, groupIDs []uuid.UUID, adminOnly bool) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	q := `SELECT role FROM group_memberships WHERE subject_id = $1 AND group_id = ANY($2)`
	if adminOnly {
		q += ` AND role = 'admin'`
	}
	rows, err := r.pool.Query(ctx, q, subjectID, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("membership roles: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}
