package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Principal struct {
	Subject string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// Verifier issues and checks admin tokens. The admin surface is a single
// shared password; tokens are short-lived HS256 JWTs so the password itself
// never rides along on subsequent requests.
type Verifier struct {
	secret   []byte
	password string
	ttl      time.Duration
	now      func() time.Time
}

func NewVerifier(secret, password string, ttl time.Duration) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		password: password,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Login checks the password in constant time and mints a token.
func (v *Verifier) Login(password string) (string, error) {
	if v.password == "" {
		return "", fmt.Errorf("admin auth is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(v.password)) != 1 {
		return "", fmt.Errorf("invalid password")
	}

	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns the principal it names.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if v.password == "" {
		return nil, fmt.Errorf("admin auth is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return &Principal{Subject: claims.Subject}, nil
}
