package payments

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/infra/db"
)

type Repo struct {
	pool   *pgxpool.Pool
	ups    *userpackages.Repo
	places *places.Repo
}

func NewRepo(pool *pgxpool.Pool, ups *userpackages.Repo, pl *places.Repo) *Repo {
	return &Repo{pool: pool, ups: ups, places: pl}
}

func (r *Repo) Apply(
	ctx context.Context,
	provider, eventID, eventType, userPackageID, placeID string,
	fn ApplyFunc,
) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if eventID != "" {
			// конкурентная доставка того же события ждёт здесь до коммита первой
			tag, err := tx.Exec(ctx, `
				INSERT INTO webhook_events (provider, event_id, type)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, provider, eventID, eventType)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrDuplicateEvent
			}
		}

		up, err := r.ups.GetForUpdate(ctx, tx, userPackageID)
		if err != nil {
			return err
		}
		if up == nil {
			return apperr.NotFound("user package")
		}

		var p *places.Place
		if placeID != "" {
			p, err = r.places.GetForUpdate(ctx, tx, placeID)
			if err != nil {
				return err
			}
			if p == nil {
				return apperr.NotFound("place")
			}
		}

		if err := fn(up, p); err != nil {
			return err
		}
		if err := r.ups.SavePayment(ctx, tx, up); err != nil {
			return err
		}
		if p != nil && p.DeletedAt == nil {
			return r.places.SaveLifecycle(ctx, tx, p)
		}
		return nil
	})
}
