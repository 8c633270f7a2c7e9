// Package authz — явная проверка прав по ролям (casbin RBAC).
// Владелец сущности может менять её сам, остальным нужно действие
// manage_any на объект.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/users"
)

//go:embed model.conf
var modelText string

//go:embed policy.csv
var policyText string

const (
	ObjPlace       = "place"
	ObjReview      = "review"
	ObjPackage     = "package"
	ObjUserPackage = "user_package"
	ObjAppConfig   = "app_config"
)

const (
	ActCreate    = "create"
	ActUpdate    = "update"
	ActDelete    = "delete"
	ActLike      = "like"
	ActStats     = "stats"
	ActModerate  = "moderate"
	ActManageAny = "manage_any"
	ActList      = "list"
	ActExport    = "export"
	ActPurchase  = "purchase"
	ActPay       = "pay"
	ActWrite     = "write"
)

// Subject — аутентифицированный пользователь запроса.
type Subject struct {
	UserID string
	Role   users.Role
}

func (s Subject) Anonymous() bool { return s.UserID == "" }

type Authorizer struct {
	e *casbin.SyncedEnforcer
}

func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: enforcer: %w", err)
	}
	if err := loadPolicy(e, policyText); err != nil {
		return nil, err
	}
	return &Authorizer{e: e}, nil
}

func loadPolicy(e *casbin.SyncedEnforcer, text string) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("authz: policy %v: %w", parts, err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("authz: grouping %v: %w", parts, err)
			}
		}
	}
	return nil
}

func (a *Authorizer) Allowed(sub Subject, obj, act string) bool {
	if sub.Anonymous() || !sub.Role.Valid() {
		return false
	}
	ok, err := a.e.Enforce(string(sub.Role), obj, act)
	return err == nil && ok
}

// Require возвращает AuthorizationError, если действие запрещено.
func (a *Authorizer) Require(sub Subject, obj, act string) error {
	if sub.Anonymous() {
		return apperr.Authorization("authentication required")
	}
	if !a.Allowed(sub, obj, act) {
		return apperr.Authorization(fmt.Sprintf("%s %s is not allowed", act, obj))
	}
	return nil
}

// RequireOwner: владелец с правом act или роль с manage_any.
func (a *Authorizer) RequireOwner(sub Subject, ownerID, obj, act string) error {
	if sub.Anonymous() {
		return apperr.Authorization("authentication required")
	}
	if sub.UserID == ownerID && a.Allowed(sub, obj, act) {
		return nil
	}
	if a.Allowed(sub, obj, ActManageAny) {
		return nil
	}
	return apperr.Authorization(fmt.Sprintf("%s %s is not allowed", act, obj))
}
