package pgsql

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

type PgxUserRepository struct {
	BaseRepository
}

var _ portsrepo.UserRepositoryFacade = (*PgxUserRepository)(nil)

const userColumns = `user_id, tenant_id, email, name, role, permissions, branch_id, is_active,
	deactivated_at, created_at, created_by, last_updated_at, last_updated_by`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u     domain.User
		role  string
		perms []string
	)
	err := row.Scan(
		&u.UserID, &u.TenantID, &u.Email, &u.Name, &role, &perms, &u.BranchID, &u.IsActive,
		&u.DeactivatedAt, &u.CreatedAt, &u.CreatedBy, &u.LastUpdatedAt, &u.LastUpdatedBy,
	)
	if err != nil {
		return u, err
	}
	if u.Role, err = domain.ParseRole(role); err != nil {
		return u, err
	}
	for _, p := range perms {
		u.Permissions = append(u.Permissions, domain.Permission(p))
	}
	u.CreatedAt, u.LastUpdatedAt = utc(u.CreatedAt), utc(u.LastUpdatedAt)
	u.DeactivatedAt = utcPtr(u.DeactivatedAt)
	return u, nil
}

func permissionStrings(perms []domain.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}

// FindUserByID retrieves a user by ID.
func (r *PgxUserRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID))
	if err != nil {
		return nil, mapError(err, "failed to find user %s", userID)
	}
	return &u, nil
}

// FindUserByEmail looks an email up within one tenant; a nil tenant searches super users.
func (r *PgxUserRepository) FindUserByEmail(ctx context.Context, tenantID *string, email string) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE COALESCE(tenant_id, '') = COALESCE($1, '') AND email = $2`,
		nullable(tenantID), email))
	if err != nil {
		return nil, mapError(err, "failed to find user by email")
	}
	return &u, nil
}

// ListUsersByTenant returns the users of one tenant ordered by creation.
func (r *PgxUserRepository) ListUsersByTenant(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at, user_id`, tenantID)
	if err != nil {
		return nil, mapError(err, "failed to list users of tenant %s", tenantID)
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan user")
		}
		out = append(out, u)
	}
	return out, mapError(rows.Err(), "failed to iterate users")
}

// SaveUser inserts a new user.
func (r *PgxUserRepository) SaveUser(ctx context.Context, u domain.User) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.UserID, nullable(u.TenantID), u.Email, u.Name, u.Role.String(), permissionStrings(u.Permissions),
		nullable(u.BranchID), u.IsActive, u.DeactivatedAt, u.CreatedAt, u.CreatedBy, u.LastUpdatedAt, u.LastUpdatedBy,
	)
	return mapError(err, "failed to save user %s", u.UserID)
}

// UpdateUser writes the mutable columns of a user.
func (r *PgxUserRepository) UpdateUser(ctx context.Context, u domain.User) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE users
		SET name = $2, role = $3, permissions = $4, branch_id = $5, is_active = $6,
			deactivated_at = $7, last_updated_at = $8, last_updated_by = $9
		WHERE user_id = $1`,
		u.UserID, u.Name, u.Role.String(), permissionStrings(u.Permissions), nullable(u.BranchID),
		u.IsActive, u.DeactivatedAt, u.LastUpdatedAt, u.LastUpdatedBy,
	)
	if err != nil {
		return mapError(err, "failed to update user %s", u.UserID)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
