// Package middleware содержит HTTP middleware сервиса продаж бинго-карточек.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const claimsKey contextKey = "claims"

// Права, которые может нести токен.
const (
	CapSalesWrite = "sales:write"
	CapAdmin      = "admin"
)

const tokenIssuer = "bingo-sales"

var signingMethod = jwt.SigningMethodHS256

// Claims описывает содержимое токена доступа.
type Claims struct {
	Caps []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// Has сообщает, выдано ли право cap. Право admin включает все остальные.
func (c *Claims) Has(capability string) bool {
	return slices.Contains(c.Caps, capability) || slices.Contains(c.Caps, CapAdmin)
}

// Authorizer проверяет Bearer-токены и права запросов.
// С пустым секретом отклоняются все запросы; проверку отключает только NewInsecureAuthorizer.
type Authorizer struct {
	secret   []byte
	insecure bool
	now      func() time.Time
}

// NewAuthorizer создаёт Authorizer с секретом подписи HS256.
func NewAuthorizer(secret string) *Authorizer {
	return &Authorizer{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewInsecureAuthorizer создаёт Authorizer без проверки токенов: все запросы получают права администратора.
func NewInsecureAuthorizer() *Authorizer {
	return &Authorizer{insecure: true, now: time.Now}
}

// Enabled сообщает, проверяются ли токены.
func (a *Authorizer) Enabled() bool {
	return !a.insecure
}

// IssueToken выпускает токен для subject с правами caps.
func (a *Authorizer) IssueToken(subject string, caps []string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}

	now := a.now()
	claims := Claims{
		Caps: caps,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *Authorizer) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware проверяет заголовок Authorization и кладёт права токена в контекст запроса.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.insecure {
			ctx := context.WithValue(r.Context(), claimsKey, &Claims{Caps: []string{CapAdmin}})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		if len(a.secret) == 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		claims, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require пропускает запрос, только если токен несёт право capability.
func Require(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !claims.Has(capability) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext извлекает права запроса из контекста.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}
