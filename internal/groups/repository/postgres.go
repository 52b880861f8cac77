package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentverse/gatekeeper/internal/groups/domain"
)

// uniqueViolation is the SQLSTATE for unique constraint conflicts.
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

const groupCols = "id, name, description, created_at, updated_at"

func scanGroup(row pgx.Row) (domain.Group, error) {
	var g domain.Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func collectGroups(rows pgx.Rows) ([]domain.Group, error) {
	defer rows.Close()
	var out []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, id uuid.UUID, name string, description *string) (domain.Group, error) {
	const q = `
		INSERT INTO groups (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING ` + groupCols
	g, err := scanGroup(r.pool.QueryRow(ctx, q, id, name, description))
	if err != nil {
		return domain.Group{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) GetGroup(ctx context.Context, id uuid.UUID) (domain.Group, error) {
	g, err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupCols+` FROM groups ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return collectGroups(rows)
}

func (r *PostgresRepository) ListGroupsByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+groupCols+` FROM groups WHERE id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("list groups by ids: %w", err)
	}
	return collectGroups(rows)
}

func (r *PostgresRepository) ListGroupsForSubject(ctx context.Context, subjectID string) ([]domain.Group, error) {
	const q = `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at
		FROM groups g
		JOIN group_memberships m ON m.group_id = g.id
		WHERE m.subject_id = $1
		ORDER BY g.created_at`
	rows, err := r.pool.Query(ctx, q, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list groups for subject: %w", err)
	}
	return collectGroups(rows)
}

func (r *PostgresRepository) ListAdminGroups(ctx context.Context, subjectID string) ([]domain.Group, error) {
	const q = `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at
		FROM groups g
		JOIN group_memberships m ON m.group_id = g.id
		WHERE m.subject_id = $1 AND m.role = 'admin'
		ORDER BY g.created_at`
	rows, err := r.pool.Query(ctx, q, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list admin groups: %w", err)
	}
	return collectGroups(rows)
}

func (r *PostgresRepository) ListGroupsWithCounts(ctx context.Context) ([]domain.GroupWithCount, error) {
	const q = `
		SELECT g.id, g.name, g.description, g.created_at, g.updated_at, count(m.id)
		FROM groups g
		LEFT JOIN group_memberships m ON m.group_id = g.id
		GROUP BY g.id
		ORDER BY g.created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list groups with counts: %w", err)
	}
	defer rows.Close()
	var out []domain.GroupWithCount
	for rows.Next() {
		var g domain.GroupWithCount
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt, &g.MemberCount); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateGroup(ctx context.Context, id uuid.UUID, name, description *string) (domain.Group, error) {
	const q = `
		UPDATE groups
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + groupCols
	g, err := scanGroup(r.pool.QueryRow(ctx, q, id, name, description))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	if err != nil {
		return domain.Group{}, fmt.Errorf("update group: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGroupNotFound
	}
	return nil
}

const membershipCols = "id, group_id, subject_id, role, created_at"

func scanMembership(row pgx.Row) (domain.Membership, error) {
	var m domain.Membership
	err := row.Scan(&m.ID, &m.GroupID, &m.SubjectID, &m.Role, &m.CreatedAt)
	return m, err
}

func (r *PostgresRepository) AddMembership(ctx context.Context, groupID uuid.UUID, subjectID string, role domain.Role) (domain.Membership, error) {
	const q = `
		INSERT INTO group_memberships (id, group_id, subject_id, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + membershipCols
	m, err := scanMembership(r.pool.QueryRow(ctx, q, uuid.New(), groupID, subjectID, role))
	if isUniqueViolation(err) {
		return domain.Membership{}, domain.ErrDuplicateMembership
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("add membership: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) GetMembership(ctx context.Context, groupID uuid.UUID, subjectID string) (domain.Membership, error) {
	const q = `SELECT ` + membershipCols + ` FROM group_memberships WHERE group_id = $1 AND subject_id = $2`
	m, err := scanMembership(r.pool.QueryRow(ctx, q, groupID, subjectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Membership{}, domain.ErrMembershipNotFound
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// RemoveMembership deletes a membership inside a transaction that serializes
// admin-affecting mutations on the group row, so two concurrent removals of a
// group's two admins cannot both pass the count check.
func (r *PostgresRepository) RemoveMembership(ctx context.Context, groupID uuid.UUID, subjectID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockGroup(ctx, tx, groupID); err != nil {
		return err
	}

	var role domain.Role
	err = tx.QueryRow(ctx, `SELECT role FROM group_memberships WHERE group_id = $1 AND subject_id = $2`, groupID, subjectID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrMembershipNotFound
	}
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}

	if role == domain.RoleAdmin {
		admins, err := countAdminsTx(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return domain.ErrLastAdmin
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM group_memberships WHERE group_id = $1 AND subject_id = $2`, groupID, subjectID); err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	return tx.Commit(ctx)
}

// UpdateMembershipRole changes a member's role, re-verifying the last-admin
// guard under the same group-row lock when demoting an admin.
func (r *PostgresRepository) UpdateMembershipRole(ctx context.Context, groupID uuid.UUID, subjectID string, role domain.Role) (domain.Membership, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("update membership role: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockGroup(ctx, tx, groupID); err != nil {
		return domain.Membership{}, err
	}

	var current domain.Role
	err = tx.QueryRow(ctx, `SELECT role FROM group_memberships WHERE group_id = $1 AND subject_id = $2`, groupID, subjectID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Membership{}, domain.ErrMembershipNotFound
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("update membership role: %w", err)
	}

	if current == domain.RoleAdmin && role == domain.RoleUser {
		admins, err := countAdminsTx(ctx, tx, groupID)
		if err != nil {
			return domain.Membership{}, err
		}
		if admins <= 1 {
			return domain.Membership{}, domain.ErrLastAdmin
		}
	}

	const q = `
		UPDATE group_memberships SET role = $3
		WHERE group_id = $1 AND subject_id = $2
		RETURNING ` + membershipCols
	m, err := scanMembership(tx.QueryRow(ctx, q, groupID, subjectID, role))
	if err != nil {
		return domain.Membership{}, fmt.Errorf("update membership role: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Membership{}, fmt.Errorf("update membership role: %w", err)
	}
	return m, nil
}

func lockGroup(ctx context.Context, tx pgx.Tx, groupID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM groups WHERE id = $1 FOR UPDATE`, groupID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrGroupNotFound
	}
	if err != nil {
		return fmt.Errorf("lock group: %w", err)
	}
	return nil
}

func countAdminsTx(ctx context.Context, tx pgx.Tx, groupID uuid.UUID) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `SELECT count(*) FROM group_memberships WHERE group_id = $1 AND role = 'admin'`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]domain.Member, error) {
	const q = `
		SELECT m.subject_id, COALESCE(u.display_name, ''), COALESCE(u.email, ''), m.role, m.created_at
		FROM group_memberships m
		LEFT JOIN users u ON u.subject_id = m.subject_id
		WHERE m.group_id = $1
		ORDER BY m.created_at`
	rows, err := r.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.SubjectID, &m.DisplayName, &m.Email, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountAdmins(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM group_memberships WHERE group_id = $1 AND role = 'admin'`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) HasAdminMembership(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM group_memberships
			WHERE group_id = $1 AND subject_id = $2 AND role = 'admin'
		)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, groupID, subjectID).Scan(&ok); err != nil {
		return false, fmt.Errorf("has admin membership: %w", err)
	}
	return ok, nil
}
