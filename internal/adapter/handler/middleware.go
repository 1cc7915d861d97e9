package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
	"github.com/rl1809/ticket-marketplace/internal/core/service"
	"github.com/rl1809/ticket-marketplace/internal/observability"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

type principalKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// Claims carried by access tokens. Subject is the user id.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Gate decides whether an authenticated principal may still act.
// It returns service.ErrForbidden for disabled accounts.
type Gate interface {
	Admit(ctx context.Context, p domain.Principal) error
}

// Auth verifies HS256 bearer tokens. Issuing them is another service's job.
type Auth struct {
	secret []byte
	gate   Gate
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// WithGate makes every authenticated request pass g first.
func (a *Auth) WithGate(g Gate) *Auth {
	a.gate = g
	return a
}

func (a *Auth) admit(ctx context.Context, p domain.Principal) error {
	if a.gate == nil {
		return nil
	}
	return a.gate.Admit(ctx, p)
}

func (a *Auth) ParseToken(raw string) (domain.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Principal{}, errInvalidToken
	}
	if claims.Subject == "" {
		return domain.Principal{}, errInvalidToken
	}

	role := domain.Role(claims.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.Principal{
		UserID: claims.Subject,
		Role:   role,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}

// Sign issues a token for p. Used by tests and the stress tool.
func (a *Auth) Sign(p domain.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  string(p.Role),
		Email: p.Email,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errMissingToken
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized: no token provided", Error: "unauthorized"})
			return
		}
		p, err := a.ParseToken(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized: invalid token", Error: "unauthorized"})
			return
		}
		if err := a.admit(r.Context(), p); err != nil {
			if errors.Is(err, service.ErrForbidden) {
				writeJSON(w, http.StatusForbidden, errorResponse{Message: err.Error(), Error: "account_disabled"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal server error", Error: "internal_error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Unauthorized", Error: "unauthorized"})
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, errorResponse{Message: "Access denied", Error: "forbidden"})
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency under name.
func Instrument(metrics *observability.Metrics, name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequest(name, r.Method, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}
