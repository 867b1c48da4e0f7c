package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines data access for roles and assignments.
type Repository interface {
	CreateRole(ctx context.Context, name, code, description string, permissions []string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRolePermissions(ctx context.Context, id int64, permissions []string) error
	SetRoleActive(ctx context.Context, id int64, active bool) error
	DeleteRole(ctx context.Context, id int64) error

	AssignRole(ctx context.Context, userID, roleID int64) error
	RevokeRole(ctx context.Context, userID, roleID int64) error
	ListUserRoles(ctx context.Context, userID int64) ([]Role, error)
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
	AssignedUserIDs(ctx context.Context, limit int) ([]int64, error)
}

// PostgresRepository provides pgx backed persistence.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const roleColumns = `id, name, code, description, is_active, permissions, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role   Role
		tokens []string
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Code, &role.Description, &role.IsActive, &tokens, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	set, err := NewPermissionSet(tokens...)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = set
	return role, nil
}

// CreateRole inserts a new role.
func (r *PostgresRepository) CreateRole(ctx context.Context, name, code, description string, permissions []string) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, code, description, permissions) VALUES ($1, $2, $3, $4) RETURNING `+roleColumns,
		name, code, description, permissions)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, translateConstraint(err)
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *PostgresRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByCode fetches a role by its stable code.
func (r *PostgresRepository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE code = $1`, code)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by id.
func (r *PostgresRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRolePermissions atomically replaces the permission set and bumps
// updated_at.
func (r *PostgresRepository) UpdateRolePermissions(ctx context.Context, id int64, permissions []string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET permissions = $2, updated_at = NOW() WHERE id = $1`,
		id, permissions)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// SetRoleActive toggles is_active. Assignments are untouched.
func (r *PostgresRepository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// DeleteRole removes the role. Assignment rows go with it via the
// ON DELETE CASCADE constraint, so the cascade is atomic with the delete.
func (r *PostgresRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// AssignRole inserts the (user, role) pair.
func (r *PostgresRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
		userID, roleID)
	return translateConstraint(err)
}

// RevokeRole deletes the (user, role) pair.
func (r *PostgresRepository) RevokeRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}
	return nil
}

// ListUserRoles returns every role assigned to the user, active or not.
func (r *PostgresRepository) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.code, r.description, r.is_active, r.permissions, r.created_at, r.updated_at
		 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = $1 ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UserPermissions returns the deduplicated union of permission tokens over
// the user's active roles. Unknown users yield an empty slice.
func (r *PostgresRepository) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT t.token
		 FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id AND r.is_active
		 CROSS JOIN LATERAL jsonb_array_elements_text(r.permissions) AS t(token)
		 WHERE ur.user_id = $1
		 ORDER BY t.token`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// AssignedUserIDs lists distinct users holding at least one assignment,
// most recently granted first. Used by the cache warm job.
func (r *PostgresRepository) AssignedUserIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM user_roles GROUP BY user_id ORDER BY MAX(created_at) DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// translateConstraint maps Postgres constraint violations onto the domain
// error taxonomy so storage errors never leak to callers.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "roles_name_key":
			return ErrDuplicateName
		case "roles_code_key":
			return ErrDuplicateCode
		case "user_roles_pkey":
			return ErrAlreadyAssigned
		}
	case "23503": // foreign_key_violation
		return ErrReferentialViolation
	}
	return err
}
