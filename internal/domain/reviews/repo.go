package reviews

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/placesdir/internal/infra/db"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const adjustPlace = `
UPDATE places SET
    rating_count = GREATEST(rating_count + $2, 0),
    rating_total = GREATEST(rating_total + $3, 0),
    rating_avg = CASE
        WHEN rating_count + $2 > 0 THEN round(GREATEST(rating_total + $3, 0)::numeric / (rating_count + $2))::int
        ELSE 0
    END,
    updated_at = now()
WHERE id = $1`

func adjust(ctx context.Context, q db.DBTX, placeID string, dc, dt int) error {
	if dc == 0 && dt == 0 {
		return nil
	}
	_, err := q.Exec(ctx, adjustPlace, placeID, dc, dt)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (*Review, error) {
	var rv Review
	err := r.pool.QueryRow(ctx, `
		SELECT id, place_id, user_id, rating, comment, status, created_at, updated_at
		FROM reviews WHERE id = $1
	`, id).Scan(&rv.ID, &rv.PlaceID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.Status, &rv.CreatedAt, &rv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

// Create сохраняет отзыв и в той же транзакции обновляет рейтинг объявления.
func (r *Repo) Create(ctx context.Context, rv *Review, dc, dt int) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO reviews (id, place_id, user_id, rating, comment, status)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING created_at, updated_at
		`, rv.ID, rv.PlaceID, rv.UserID, rv.Rating, rv.Comment, rv.Status).Scan(&rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return err
		}
		return adjust(ctx, tx, rv.PlaceID, dc, dt)
	})
}

// Transition меняет статус, только если он всё ещё равен rv.Status.
// false — статус изменили параллельно.
func (r *Repo) Transition(ctx context.Context, rv *Review, to Status, dc, dt int) (bool, error) {
	ok := false
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE reviews SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2
		`, rv.ID, rv.Status, to)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		ok = true
		return adjust(ctx, tx, rv.PlaceID, dc, dt)
	})
	return ok, err
}

// Delete удаляет отзыв, если его статус не менялся, и правит рейтинг.
func (r *Repo) Delete(ctx context.Context, rv *Review, dc, dt int) (bool, error) {
	ok := false
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM reviews WHERE id = $1 AND status = $2`, rv.ID, rv.Status)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		ok = true
		return adjust(ctx, tx, rv.PlaceID, dc, dt)
	})
	return ok, err
}

// DeleteByPlace удаляет все отзывы объявления (каскад при удалении).
func (r *Repo) DeleteByPlace(ctx context.Context, placeID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE place_id = $1`, placeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) CountByUserPlace(ctx context.Context, userID, placeID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM reviews WHERE user_id = $1 AND place_id = $2
	`, userID, placeID).Scan(&n)
	return n, err
}

func (r *Repo) ListByPlace(ctx context.Context, placeID string, onlyPublished bool) ([]Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, place_id, user_id, rating, comment, status, created_at, updated_at
		FROM reviews
		WHERE place_id = $1 AND (NOT $2 OR status = 'Published')
		ORDER BY created_at DESC
	`, placeID, onlyPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.PlaceID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.Status, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
