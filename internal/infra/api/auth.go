package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"momo-subscription/internal/infra/logging"
	"momo-subscription/internal/infra/metrics"
)

const adminRole = "admin"

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth verifies HS256 bearer tokens for the operator endpoints. An empty
// secret disables the check.
type AdminAuth struct {
	secret []byte
	log    *zerolog.Logger
}

func NewAdminAuth(secret string, logger *zerolog.Logger) *AdminAuth {
	l := logger.With().Str("component", "AdminAuth").Logger()
	return &AdminAuth{secret: []byte(secret), log: &l}
}

func (a *AdminAuth) Enabled() bool { return len(a.secret) > 0 }

// Mint signs an admin token valid for ttl.
func (a *AdminAuth) Mint(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("admin secret not configured")
	}
	now := time.Now()
	claims := AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AdminAuth) parse(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(strings.TrimSpace(hdr[7:]), claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != adminRole {
		return nil, errors.New("not an admin token")
	}
	return claims, nil
}

// Guard rejects requests without a valid admin token.
func (a *AdminAuth) Guard(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.Enabled() {
				if _, err := a.parse(r); err != nil {
					l := logging.With(r.Context(), a.log)
					l.Warn().Err(err).Str("path", r.URL.Path).Msg("admin request refused")
					metrics.IncAdminRequest(endpoint, "unauthorized")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid or missing credentials","code":"unauthorized","retryWithNewExternalId":false}`))
					return
				}
			}
			metrics.IncAdminRequest(endpoint, "authorized")
			next.ServeHTTP(w, r)
		})
	}
}
