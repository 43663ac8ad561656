package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aqms-backend/internal/model"
)

// Internal rejection reasons. Each returned error also wraps model.ErrUnauthenticated,
// which is all callers outside this package should branch on.
var (
	ErrTokenMalformed      = errors.New("token malformed")
	ErrTokenSignature      = errors.New("token signature invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMissingSubject = errors.New("token missing subject")
	ErrTokenInvalid        = errors.New("token invalid")
)

var errEmptySecret = errors.New("token signing secret is empty")

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewTokenService refuses to start without a secret; there is no built-in fallback key.
func NewTokenService(secret string, defaultTTL time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errEmptySecret
	}
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}

	return &TokenService{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Issue signs an HS256 token for subjectID. ttl <= 0 uses the default TTL.
func (s *TokenService) Issue(subjectID string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", model.ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *TokenService) Validate(tokenString string) (*model.AuthClaims, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, rejection(classify(err))
	}
	if !parsed.Valid {
		return nil, rejection(ErrTokenInvalid)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, rejection(ErrTokenMissingSubject)
	}

	out := &model.AuthClaims{
		SubjectID: claims.Subject,
		Role:      model.Role(claims.Role),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignature
	default:
		return ErrTokenInvalid
	}
}

func rejection(reason error) error {
	return fmt.Errorf("%w: %w", model.ErrUnauthenticated, reason)
}
