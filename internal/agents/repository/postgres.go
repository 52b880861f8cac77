package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentverse/gatekeeper/internal/agents/domain"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const agentCols = "id, external_id, name, created_by, created_at"

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	err := row.Scan(&a.ID, &a.ExternalID, &a.Name, &a.CreatedBy, &a.CreatedAt)
	return a, err
}

func collectAgents(rows pgx.Rows) ([]domain.Agent, error) {
	defer rows.Close()
	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateAgent(ctx context.Context, id uuid.UUID, externalID, name, createdBy string) (domain.Agent, error) {
	const q = `
		INSERT INTO agents (id, external_id, name, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + agentCols
	a, err := scanAgent(r.pool.QueryRow(ctx, q, id, externalID, name, createdBy))
	if isUniqueViolation(err) {
		return domain.Agent{}, domain.ErrDuplicateAgent
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	a, err := scanAgent(r.pool.QueryRow(ctx, `SELECT `+agentCols+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, domain.ErrAgentNotFound
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ListAgentsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+agentCols+` FROM agents WHERE id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("list agents by ids: %w", err)
	}
	return collectAgents(rows)
}

func (r *PostgresRepository) ListAgentsInGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Agent, error) {
	const q = `
		SELECT a.id, a.external_id, a.name, a.created_by, a.created_at
		FROM agents a
		JOIN group_agents ga ON ga.agent_id = a.id
		WHERE ga.group_id = $1
		ORDER BY a.created_at`
	rows, err := r.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, fmt.Errorf("list agents in group: %w", err)
	}
	return collectAgents(rows)
}

const assignmentCols = "id, group_id, agent_id, added_by, created_at"

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var ga domain.Assignment
	err := row.Scan(&ga.ID, &ga.GroupID, &ga.AgentID, &ga.AddedBy, &ga.CreatedAt)
	return ga, err
}

func collectAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	var out []domain.Assignment
	for rows.Next() {
		ga, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ga)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AddAssignment(ctx context.Context, groupID, agentID uuid.UUID, addedBy string) (domain.Assignment, error) {
	const q = `
		INSERT INTO group_agents (id, group_id, agent_id, added_by)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + assignmentCols
	ga, err := scanAssignment(r.pool.QueryRow(ctx, q, uuid.New(), groupID, agentID, addedBy))
	if isUniqueViolation(err) {
		return domain.Assignment{}, domain.ErrDuplicateAssignment
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("add assignment: %w", err)
	}
	return ga, nil
}

func (r *PostgresRepository) RemoveAssignment(ctx context.Context, groupID, agentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM group_agents WHERE group_id = $1 AND agent_id = $2`, groupID, agentID)
	if err != nil {
		return fmt.Errorf("remove assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAssignmentNotFound
	}
	return nil
}

func (r *PostgresRepository) ListAssignmentsByGroups(ctx context.Context, groupIDs []uuid.UUID) ([]domain.Assignment, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentCols+` FROM group_agents WHERE group_id = ANY($1) ORDER BY created_at`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("list assignments by groups: %w", err)
	}
	return collectAssignments(rows)
}

func (r *PostgresRepository) ListAllAssignments(ctx context.Context) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentCols+` FROM group_agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return collectAssignments(rows)
}

// ReplaceAgentGroups performs the delete-all-then-insert-all swap inside one
// transaction so a failure leaves the previous assignment set intact.
func (r *PostgresRepository) ReplaceAgentGroups(ctx context.Context, agentID uuid.UUID, groupIDs []uuid.UUID, addedBy string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace agent groups: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM group_agents WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("replace agent groups: %w", err)
	}
	for _, gid := range groupIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO group_agents (id, group_id, agent_id, added_by) VALUES ($1, $2, $3, $4)`,
			uuid.New(), gid, agentID, addedBy)
		if err != nil {
			return fmt.Errorf("replace agent groups: %w", err)
		}
	}
	return tx.Commit(ctx)
}
