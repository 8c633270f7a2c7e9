package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/users"
)

// Claims — токен выдаёт внешний провайдер; sub — id пользователя.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type UserStore interface {
	Upsert(ctx context.Context, p users.Profile, role users.Role) (*users.User, error)
}

type Authenticator struct {
	secret []byte
	users  UserStore
	log    *slog.Logger
}

func NewAuthenticator(secret string, us UserStore, log *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: us, log: log}
}

// Parse проверяет подпись HS256 и срок действия токена.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Issue подписывает токен (для тестов и служебных клиентов).
func (a *Authenticator) Issue(userID string, role users.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

type subjectKey struct{}

func subjectFrom(ctx context.Context) authz.Subject {
	s, _ := ctx.Value(subjectKey{}).(authz.Subject)
	return s
}

// Middleware кладёт в контекст Subject. Без заголовка Authorization
// запрос анонимный; неверный токен — 401.
// Пользователь синхронизируется с таблицей users; повышенная роль
// из БД не понижается токеном.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if h == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "bearer token expected", Code: "unauthorized"})
			return
		}
		claims, err := a.Parse(token)
		if err != nil {
			a.log.Debug("token rejected", "err", err)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token", Code: "unauthorized"})
			return
		}

		role := users.Role(claims.Role)
		if !role.Valid() {
			role = users.RoleCustomer
		}
		if a.users != nil {
			u, err := a.users.Upsert(r.Context(), users.Profile{ID: claims.Subject, Email: claims.Email, Name: claims.Name}, role)
			if err != nil {
				a.log.Error("failed to sync user", "user_id", claims.Subject, "err", err)
				writeError(w, a.log, err)
				return
			}
			role = u.Role
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, authz.Subject{UserID: claims.Subject, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth отклоняет анонимные запросы.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subjectFrom(r.Context()).Anonymous() {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error: apperr.Public(apperr.Authorization("authentication required")),
				Code:  "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
