package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"aqms-backend/internal/model"
)

type tokenValidator interface {
	Validate(tokenString string) (*model.AuthClaims, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

type contextKey string

const (
	authClaimsContextKey contextKey = "auth_claims"
	authUserContextKey   contextKey = "auth_user"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errNotBearer            = errors.New("authorization scheme is not bearer")
	errSubjectGone          = errors.New("token subject no longer exists")
)

type AuthMiddleware struct {
	tokens tokenValidator
	users  userFinder
}

func NewAuthMiddleware(tokens tokenValidator, users userFinder) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Authenticate resolves an Authorization header to the user it names. Every
// failure wraps model.ErrUnauthenticated; the second wrapped error is the reason.
func (m *AuthMiddleware) Authenticate(ctx context.Context, header string) (model.User, *model.AuthClaims, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return model.User{}, nil, fmt.Errorf("%w: %w", model.ErrUnauthenticated, errMissingAuthorization)
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return model.User{}, nil, fmt.Errorf("%w: %w", model.ErrUnauthenticated, errNotBearer)
	}

	claims, err := m.tokens.Validate(strings.TrimSpace(token))
	if err != nil {
		return model.User{}, nil, err
	}

	user, err := m.users.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, nil, fmt.Errorf("%w: %w", model.ErrUnauthenticated, errSubjectGone)
	}
	if err != nil {
		return model.User{}, nil, fmt.Errorf("resolve token subject: %w", err)
	}

	return user, claims, nil
}

// Authorize checks the role carried by the token, not the live user record.
func Authorize(claims *model.AuthClaims, roles ...model.Role) error {
	if claims == nil {
		return model.ErrUnauthenticated
	}
	for _, role := range roles {
		if claims.Role == role {
			return nil
		}
	}
	return model.ErrForbidden
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, claims, err := m.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if !errors.Is(err, model.ErrUnauthenticated) {
				slog.Error("authentication lookup failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error")
				return
			}
			slog.Warn("authentication rejected", "request_id", RequestIDFromContext(r.Context()), "reason", err.Error())
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		ctx = context.WithValue(ctx, authUserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())

			switch err := Authorize(claims, allowedRoles...); {
			case errors.Is(err, model.ErrUnauthenticated):
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			case err != nil:
				slog.Warn("authorization rejected", "request_id", RequestIDFromContext(r.Context()), "user_id", claims.SubjectID, "role", claims.Role)
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(authUserContextKey).(model.User)
	return user, ok
}
