package memory

import (
	"context"

	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/users"
)

type Users struct{ db *DB }

func (s *Users) GetByID(_ context.Context, id string) (*users.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Upsert по профилю; роль admin/super_admin не понижается.
func (s *Users) Upsert(_ context.Context, p users.Profile, role users.Role) (*users.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := s.db.now()
	u, ok := s.db.users[p.ID]
	if !ok {
		u = users.User{ID: p.ID, Role: role, CreatedAt: now}
	} else if !u.Role.IsAdmin() {
		u.Role = role
	}
	u.Email, u.Name, u.UpdatedAt = p.Email, p.Name, now
	s.db.users[p.ID] = u
	return &u, nil
}

func (s *Users) ExistsSuperAdmin(_ context.Context) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Role == users.RoleSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}

type AppConfig struct{ db *DB }

func (s *AppConfig) Load(_ context.Context) (*appconfig.AppConfig, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.config == nil {
		return nil, nil
	}
	c := *s.db.config
	return &c, nil
}

func (s *AppConfig) Save(_ context.Context, c appconfig.AppConfig) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.config = &c
	return nil
}
