package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id)

	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Upsert по профилю из токена. Роль admin/super_admin не понижаем.
func (r *Repo) Upsert(ctx context.Context, p Profile, role Role) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id)
		DO UPDATE SET
			email      = EXCLUDED.email,
			name       = EXCLUDED.name,
			role       = CASE WHEN users.role IN ('admin','super_admin') THEN users.role ELSE EXCLUDED.role END,
			updated_at = now()
		RETURNING id, email, name, role, created_at, updated_at
	`, p.ID, p.Email, p.Name, role)

	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// ExistsSuperAdmin — есть ли в системе хотя бы один super_admin.
func (r *Repo) ExistsSuperAdmin(ctx context.Context) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = 'super_admin')`).Scan(&ok)
	return ok, err
}
