package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

/* Packages */

const packageColumns = `id, name, canonical, price, sale_price, final_price,
	listing_limit, listing_duration, disable_multiple_purchases,
	auto_approve_listing, mark_listing_as_featured, type, status, sort,
	deleted_at, created_at, updated_at`

func scanPackage(row pgx.Row) (*Package, error) {
	var p Package
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Canonical,
		&p.Price,
		&p.SalePrice,
		&p.FinalPrice,
		&p.ListingLimit,
		&p.ListingDuration,
		&p.DisableMultiplePurchases,
		&p.AutoApproveListing,
		&p.MarkListingAsFeatured,
		&p.Type,
		&p.Status,
		&p.Sort,
		&p.DeletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPackage ищет и удалённые пакеты; доступность проверяет Catalog.
func (r *Repo) GetPackage(ctx context.Context, id string) (*Package, error) {
	p, err := scanPackage(r.pool.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repo) ListPackages(ctx context.Context, onlyActive bool) ([]Package, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE deleted_at IS NULL AND (NOT $1 OR status = 'Active')
		ORDER BY sort, created_at
	`, onlyActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repo) CreatePackage(ctx context.Context, p *Package) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO packages (id, name, canonical, price, sale_price, final_price,
			listing_limit, listing_duration, disable_multiple_purchases,
			auto_approve_listing, mark_listing_as_featured, type, status, sort)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at
	`,
		p.ID, p.Name, p.Canonical, p.Price, p.SalePrice, p.FinalPrice,
		p.ListingLimit, p.ListingDuration, p.DisableMultiplePurchases,
		p.AutoApproveListing, p.MarkListingAsFeatured, p.Type, p.Status, p.Sort,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

/* Categories */

func (r *Repo) CategoriesByIDs(ctx context.Context, ids []string) ([]Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, slug, active, created_at
		FROM categories
		WHERE id = ANY($1)
		ORDER BY title
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
