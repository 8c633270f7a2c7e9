package appconfig

import (
	"context"
	"fmt"

	"github.com/Spok95/placesdir/internal/validation"
)

type Store interface {
	Load(ctx context.Context) (*AppConfig, error)
	Save(ctx context.Context, c AppConfig) error
}

// Service отдаёт действующую политику: сохранённую в БД
// или значения по умолчанию из файла конфигурации.
type Service struct {
	store    Store
	defaults AppConfig
}

func NewService(store Store, defaults AppConfig) *Service {
	return &Service{store: store, defaults: defaults}
}

func (s *Service) Get(ctx context.Context) (AppConfig, error) {
	c, err := s.store.Load(ctx)
	if err != nil {
		return AppConfig{}, fmt.Errorf("appconfig: load: %w", err)
	}
	if c == nil {
		return s.defaults, nil
	}
	return *c, nil
}

func (s *Service) Save(ctx context.Context, c AppConfig) error {
	if err := validation.Struct(c.Places); err != nil {
		return err
	}
	if err := s.store.Save(ctx, c); err != nil {
		return fmt.Errorf("appconfig: save: %w", err)
	}
	return nil
}
