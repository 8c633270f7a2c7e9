package appconfig

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Load возвращает nil, nil, если настройки ещё не сохранялись.
func (r *Repo) Load(ctx context.Context) (*AppConfig, error) {
	var places, reviews []byte
	err := r.pool.QueryRow(ctx, `SELECT places, reviews FROM app_config WHERE id = 1`).Scan(&places, &reviews)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c AppConfig
	if err := json.Unmarshal(places, &c.Places); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reviews, &c.Reviews); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) Save(ctx context.Context, c AppConfig) error {
	places, err := json.Marshal(c.Places)
	if err != nil {
		return err
	}
	reviews, err := json.Marshal(c.Reviews)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO app_config (id, places, reviews) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			places = EXCLUDED.places,
			reviews = EXCLUDED.reviews,
			updated_at = now()
	`, places, reviews)
	return err
}
