package authz

import (
	"errors"
	"testing"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/users"
)

func TestRequire(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	customer := Subject{UserID: "u1", Role: users.RoleCustomer}
	admin := Subject{UserID: "a1", Role: users.RoleAdmin}
	super := Subject{UserID: "s1", Role: users.RoleSuperAdmin}

	tests := []struct {
		name    string
		sub     Subject
		obj     string
		act     string
		allowed bool
	}{
		{"customer creates place", customer, ObjPlace, ActCreate, true},
		{"customer moderates place", customer, ObjPlace, ActModerate, false},
		{"customer creates package", customer, ObjPackage, ActCreate, false},
		{"admin moderates place", admin, ObjPlace, ActModerate, true},
		{"admin exports purchases", admin, ObjUserPackage, ActExport, true},
		{"super admin inherits admin", super, ObjAppConfig, ActWrite, true},
		{"super admin inherits customer", super, ObjReview, ActCreate, true},
		{"anonymous", Subject{}, ObjPlace, ActCreate, false},
		{"unknown role", Subject{UserID: "x", Role: "guest"}, ObjPlace, ActCreate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Require(tt.sub, tt.obj, tt.act)
			if tt.allowed && err != nil {
				t.Errorf("got %v, want allowed", err)
			}
			if !tt.allowed && !errors.Is(err, apperr.ErrAuthorization) {
				t.Errorf("got %v, want authorization error", err)
			}
		})
	}
}

func TestRequireOwner(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	owner := Subject{UserID: "u1", Role: users.RoleCustomer}
	other := Subject{UserID: "u2", Role: users.RoleCustomer}
	admin := Subject{UserID: "a1", Role: users.RoleAdmin}

	if err := a.RequireOwner(owner, "u1", ObjPlace, ActUpdate); err != nil {
		t.Errorf("owner: %v", err)
	}
	if err := a.RequireOwner(other, "u1", ObjPlace, ActUpdate); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("other user: got %v", err)
	}
	if err := a.RequireOwner(admin, "u1", ObjPlace, ActDelete); err != nil {
		t.Errorf("admin: %v", err)
	}
}
