package userpackages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/infra/db"
)

const exclusiveIndex = "user_packages_exclusive_uniq"

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const columns = `id, user_id, package, status, usage, is_limit_reached, charge, deleted_at, created_at, updated_at`

func scan(row pgx.Row) (*UserPackage, error) {
	var (
		u      UserPackage
		pkg    []byte
		charge []byte
	)
	if err := row.Scan(
		&u.ID,
		&u.UserID,
		&pkg,
		&u.Status,
		&u.Usage,
		&u.IsLimitReached,
		&charge,
		&u.DeletedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pkg, &u.Package); err != nil {
		return nil, fmt.Errorf("decode package snapshot: %w", err)
	}
	if len(charge) > 0 {
		u.Charge = &Charge{}
		if err := json.Unmarshal(charge, u.Charge); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
	}
	return &u, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*UserPackage, error) {
	return r.get(ctx, r.pool, id, false)
}

// GetForUpdate блокирует строку до конца транзакции q.
func (r *Repo) GetForUpdate(ctx context.Context, q db.DBTX, id string) (*UserPackage, error) {
	return r.get(ctx, q, id, true)
}

func (r *Repo) get(ctx context.Context, q db.DBTX, id string, lock bool) (*UserPackage, error) {
	sql := `SELECT ` + columns + ` FROM user_packages WHERE id = $1 AND deleted_at IS NULL`
	if lock {
		sql += ` FOR UPDATE`
	}
	u, err := scan(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *Repo) CountActive(ctx context.Context, userID, packageID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM user_packages
		WHERE user_id = $1 AND package_id = $2 AND deleted_at IS NULL
	`, userID, packageID).Scan(&n)
	return n, err
}

// Create сохраняет покупку. Повторная покупка эксклюзивного пакета
// отсекается уникальным индексом и возвращается как DuplicatePurchase.
func (r *Repo) Create(ctx context.Context, u *UserPackage) error {
	pkg, err := json.Marshal(u.Package)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO user_packages (id, user_id, package_id, package, listing_limit, exclusive,
			status, usage, is_limit_reached)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at
	`,
		u.ID, u.UserID, u.PackageID(), pkg, u.Package.ListingLimit, u.Exclusive(),
		u.Status, u.Usage, u.IsLimitReached,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err, exclusiveIndex) {
		return apperr.DuplicatePurchase()
	}
	return err
}

// Consume атомарно списывает одно использование: usage+1 и пересчёт
// is_limit_reached одним UPDATE. Если условие не выполнено — nil, nil.
func (r *Repo) Consume(ctx context.Context, id string) (*UserPackage, error) {
	const q = `
UPDATE user_packages
SET usage = usage + 1,
    is_limit_reached = (listing_limit IS NOT NULL AND usage + 1 >= listing_limit),
    updated_at = now()
WHERE id = $1
  AND deleted_at IS NULL
  AND status = 'paid'
  AND NOT is_limit_reached
  AND (listing_limit IS NULL OR usage < listing_limit)
RETURNING ` + columns
	u, err := scan(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// Release возвращает одно использование, списанное Consume.
func (r *Repo) Release(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_packages
		SET usage = usage - 1,
		    is_limit_reached = (listing_limit IS NOT NULL AND usage - 1 >= listing_limit),
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL AND usage > 0
	`, id)
	return err
}

// Cancel помечает покупку удалённой.
func (r *Repo) Cancel(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_packages SET deleted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	return err
}

// SavePayment записывает результат MarkPaid внутри транзакции вебхука.
// Условие status='unpaid' защищает от повторного применения.
func (r *Repo) SavePayment(ctx context.Context, q db.DBTX, u *UserPackage) error {
	charge, err := json.Marshal(u.Charge)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE user_packages
		SET status = $2, usage = $3, is_limit_reached = $4, charge = $5, updated_at = now()
		WHERE id = $1 AND status = 'unpaid'
	`, u.ID, u.Status, u.Usage, u.IsLimitReached, charge)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.PaymentStateConflict("user package already paid")
	}
	return nil
}

func (r *Repo) List(ctx context.Context, f Filter) ([]UserPackage, int, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM user_packages
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR status = $2)
	`, f.UserID, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+columns+` FROM user_packages
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, f.UserID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []UserPackage
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}
