package places

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/geo"
	"github.com/Spok95/placesdir/internal/infra/db"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const columns = `id, user_id, title, description, canonical, slug, categories, tags,
	address, phone, email, website, whatsapp, image, images, price_range, lat, lng,
	status, is_featured, expires_at, featured_expires_at,
	rating_count, rating_total, rating_avg, view_count, call_count, like_count,
	user_package_id, deleted_at, created_at, updated_at`

func scanPlace(row pgx.Row, withDistance bool) (*Place, error) {
	var p Place
	dest := []any{
		&p.ID,
		&p.UserID,
		&p.Title,
		&p.Description,
		&p.Canonical,
		&p.Slug,
		&p.CategoryIDs,
		&p.Tags,
		&p.Address,
		&p.Phone,
		&p.Email,
		&p.Website,
		&p.Whatsapp,
		&p.Image,
		&p.Images,
		&p.PriceRange,
		&p.Location.Lat,
		&p.Location.Lng,
		&p.Status,
		&p.IsFeatured,
		&p.ExpiresAt,
		&p.FeaturedExpiresAt,
		&p.RatingCount,
		&p.RatingTotal,
		&p.RatingAvg,
		&p.ViewCount,
		&p.CallCount,
		&p.LikeCount,
		&p.UserPackageID,
		&p.DeletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if withDistance {
		dest = append(dest, &p.Distance)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *Repo) Get(ctx context.Context, id string) (*Place, error) {
	return r.get(ctx, r.pool, `SELECT `+columns+` FROM places WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetForUpdate блокирует строку до конца транзакции q. Удалённое
// объявление тоже возвращается: оплата по нему всё равно проводится.
func (r *Repo) GetForUpdate(ctx context.Context, q db.DBTX, id string) (*Place, error) {
	return r.get(ctx, q, `SELECT `+columns+` FROM places WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repo) get(ctx context.Context, q db.DBTX, sql, id string) (*Place, error) {
	p, err := scanPlace(q.QueryRow(ctx, sql, id), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repo) Create(ctx context.Context, p *Place) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO places (id, user_id, title, description, canonical, slug, categories, tags,
			address, phone, email, website, whatsapp, image, images, price_range, lat, lng,
			status, is_featured, expires_at, featured_expires_at, user_package_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		RETURNING created_at, updated_at
	`,
		p.ID, p.UserID, p.Title, p.Description, p.Canonical, p.Slug, nonNil(p.CategoryIDs), nonNil(p.Tags),
		p.Address, p.Phone, p.Email, p.Website, p.Whatsapp, p.Image, nonNil(p.Images), p.PriceRange,
		p.Location.Lat, p.Location.Lng,
		p.Status, p.IsFeatured, p.ExpiresAt, p.FeaturedExpiresAt, p.UserPackageID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// Update сохраняет редактируемые поля и статус.
func (r *Repo) Update(ctx context.Context, p *Place) error {
	return r.pool.QueryRow(ctx, `
		UPDATE places SET
			title = $2, description = $3, canonical = $4, slug = $5, categories = $6, tags = $7,
			address = $8, phone = $9, email = $10, website = $11, whatsapp = $12,
			image = $13, images = $14, price_range = $15, lat = $16, lng = $17,
			status = $18, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`,
		p.ID, p.Title, p.Description, p.Canonical, p.Slug, nonNil(p.CategoryIDs), nonNil(p.Tags),
		p.Address, p.Phone, p.Email, p.Website, p.Whatsapp,
		p.Image, nonNil(p.Images), p.PriceRange, p.Location.Lat, p.Location.Lng,
		p.Status,
	).Scan(&p.UpdatedAt)
}

func (r *Repo) SetStatus(ctx context.Context, id string, s Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE places SET status = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, s)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("place")
	}
	return nil
}

// SaveLifecycle записывает поля жизненного цикла внутри транзакции q.
func (r *Repo) SaveLifecycle(ctx context.Context, q db.DBTX, p *Place) error {
	_, err := q.Exec(ctx, `
		UPDATE places SET
			status = $2, is_featured = $3, expires_at = $4, featured_expires_at = $5,
			updated_at = now()
		WHERE id = $1
	`, p.ID, p.Status, p.IsFeatured, p.ExpiresAt, p.FeaturedExpiresAt)
	return err
}

func (r *Repo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE places SET deleted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	return err
}

// ToggleLike ставит или снимает лайк пользователя.
func (r *Repo) ToggleLike(ctx context.Context, placeID, userID string) (bool, int, error) {
	var (
		liked bool
		count int
	)
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO place_likes (place_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, placeID, userID)
		if err != nil {
			return err
		}
		liked = tag.RowsAffected() == 1
		delta := 1
		if !liked {
			if _, err := tx.Exec(ctx, `DELETE FROM place_likes WHERE place_id = $1 AND user_id = $2`, placeID, userID); err != nil {
				return err
			}
			delta = -1
		} else if _, err := tx.Exec(ctx, `
			INSERT INTO app_events (type, place_id, user_id) VALUES ('like', $1, $2)
		`, placeID, userID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			UPDATE places SET like_count = GREATEST(like_count + $2, 0)
			WHERE id = $1
			RETURNING like_count
		`, placeID, delta).Scan(&count)
	})
	return liked, count, err
}

// Track увеличивает счётчик просмотров/звонков и пишет событие.
func (r *Repo) Track(ctx context.Context, placeID, userID string, kind EventKind) error {
	var column string
	switch kind {
	case EventView:
		column = "view_count"
	case EventCall:
		column = "call_count"
	default:
		return fmt.Errorf("places: unsupported event %q", kind)
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE places SET `+column+` = `+column+` + 1 WHERE id = $1 AND deleted_at IS NULL`,
			placeID,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO app_events (type, place_id, user_id) VALUES ($1, $2, $3)`,
			string(kind), placeID, uid)
		return err
	})
}

// Statistics без периода отдаёт счётчики, с периодом — число событий.
func (r *Repo) Statistics(ctx context.Context, placeID string, from, to *time.Time) (Stats, error) {
	var s Stats
	if from == nil && to == nil {
		err := r.pool.QueryRow(ctx, `
			SELECT view_count, call_count, like_count FROM places WHERE id = $1
		`, placeID).Scan(&s.Views, &s.Calls, &s.Likes)
		return s, err
	}
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE type = 'view'),
			count(*) FILTER (WHERE type = 'call'),
			count(*) FILTER (WHERE type = 'like')
		FROM app_events
		WHERE place_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
	`, placeID, from, to).Scan(&s.Views, &s.Calls, &s.Likes)
	return s, err
}

func (r *Repo) ListForAdmin(ctx context.Context, f AdminFilter) ([]Place, int, error) {
	c := Criteria{UserID: f.UserID, Limit: f.Limit, Offset: f.Offset, Sort: []Sort{{Field: "createdAt", Desc: true}}}
	if f.Status != "" {
		c.Statuses = []Status{f.Status}
	}
	total, err := r.Count(ctx, c)
	if err != nil {
		return nil, 0, err
	}
	out, err := r.Search(ctx, c)
	return out, total, err
}

/* Поиск */

type builder struct {
	where []string
	args  []any
	dist  string
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func build(c Criteria) *builder {
	b := &builder{where: []string{"deleted_at IS NULL"}}

	if len(c.IDs) > 0 {
		b.where = append(b.where, "id = ANY("+b.arg(c.IDs)+")")
	}
	if len(c.Statuses) > 0 {
		ss := make([]string, len(c.Statuses))
		for i, s := range c.Statuses {
			ss[i] = string(s)
		}
		b.where = append(b.where, "status = ANY("+b.arg(ss)+")")
	}
	if c.UserID != "" {
		b.where = append(b.where, "user_id = "+b.arg(c.UserID))
	}
	if len(c.Categories) > 0 {
		b.where = append(b.where, "categories && "+b.arg(c.Categories))
	}
	if c.Tag != "" {
		like := b.arg("%" + likeEscape(c.Tag) + "%")
		exact := b.arg(c.Tag)
		b.where = append(b.where, fmt.Sprintf("(canonical LIKE %s OR %s = ANY(tags))", like, exact))
	}
	if c.RatingMin != nil {
		b.where = append(b.where, "rating_avg >= "+b.arg(*c.RatingMin))
	}
	if c.RatingMax != nil {
		b.where = append(b.where, "rating_avg <= "+b.arg(*c.RatingMax))
	}
	if c.Featured != nil {
		b.where = append(b.where, "is_featured = "+b.arg(*c.Featured))
	}

	switch c.Geo.Mode {
	case GeoBox:
		sw, ne := c.Geo.Box.SouthWest, c.Geo.Box.NorthEast
		b.where = append(b.where, fmt.Sprintf("lat BETWEEN %s AND %s", b.arg(sw.Lat), b.arg(ne.Lat)))
		if sw.Lng <= ne.Lng {
			b.where = append(b.where, fmt.Sprintf("lng BETWEEN %s AND %s", b.arg(sw.Lng), b.arg(ne.Lng)))
		} else {
			b.where = append(b.where, fmt.Sprintf("(lng >= %s OR lng <= %s)", b.arg(sw.Lng), b.arg(ne.Lng)))
		}
	case GeoRadius, GeoNear:
		lat := b.arg(c.Geo.Center.Lat)
		lng := b.arg(c.Geo.Center.Lng)
		rad := b.arg(geo.EarthRadius(c.Geo.Unit))
		b.dist = fmt.Sprintf(
			"(%s::float8 * 2 * asin(LEAST(1.0, sqrt(power(sin(radians(lat - %s::float8) / 2), 2) + cos(radians(%s::float8)) * cos(radians(lat)) * power(sin(radians(lng - %s::float8) / 2), 2)))))",
			rad, lat, lat, lng,
		)
		if c.Geo.Mode == GeoRadius {
			b.where = append(b.where, b.dist+" <= "+b.arg(c.Geo.Radius))
		}
	}
	return b
}

func (b *builder) whereSQL() string {
	return " WHERE " + strings.Join(b.where, " AND ")
}

func orderSQL(c Criteria, b *builder) string {
	var parts []string
	if b.dist != "" && c.Geo.Sorted {
		parts = append(parts, "distance ASC")
	}
	for _, s := range c.Sort {
		col, ok := SortFields[s.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (r *Repo) Search(ctx context.Context, c Criteria) ([]Place, error) {
	b := build(c)
	dist := "NULL::float8"
	if b.dist != "" {
		dist = b.dist
	}
	sql := `SELECT ` + columns + `, ` + dist + ` AS distance FROM places` + b.whereSQL() + orderSQL(c, b)
	if c.Limit > 0 {
		sql += " LIMIT " + b.arg(c.Limit)
	}
	if c.Offset > 0 {
		sql += " OFFSET " + b.arg(c.Offset)
	}

	rows, err := r.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Place
	for rows.Next() {
		p, err := scanPlace(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repo) Count(ctx context.Context, c Criteria) (int, error) {
	b := build(c)
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM places`+b.whereSQL(), b.args...).Scan(&n)
	return n, err
}

// Sample — до n случайных id по условиям c.
func (r *Repo) Sample(ctx context.Context, c Criteria, n int) ([]string, error) {
	b := build(c)
	sql := `SELECT id FROM places` + b.whereSQL() + ` ORDER BY random() LIMIT ` + b.arg(n)
	rows, err := r.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

/* Истечение сроков */

// ExpireDue переводит в Expired не более batch объявлений с истёкшим expiresAt.
func (r *Repo) ExpireDue(ctx context.Context, now time.Time, batch int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE places SET status = 'Expired', updated_at = now()
		WHERE id IN (
			SELECT id FROM places
			WHERE deleted_at IS NULL
			  AND status <> 'Expired'
			  AND expires_at <= $1
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, now, batch)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnfeatureDue снимает isFeatured у не более batch объявлений с истёкшим featuredExpiresAt.
func (r *Repo) UnfeatureDue(ctx context.Context, now time.Time, batch int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE places SET is_featured = FALSE, updated_at = now()
		WHERE id IN (
			SELECT id FROM places
			WHERE deleted_at IS NULL
			  AND status = 'Approved'
			  AND is_featured
			  AND featured_expires_at <= $1
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`, now, batch)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
