package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pet-care-tracker/internal/ports/auth"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenEmpty     = errors.New("token is empty")
	ErrNotConfigured  = errors.New("jwt verifier not configured")
	ErrMissingSubject = errors.New("token missing sub")
)

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	// Leeway tolera relojes desfasados en exp/nbf.
	Leeway time.Duration
}

// tokenClaims es el payload que emite el IdP de la app.
type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	gojwt.RegisteredClaims
}

// Verifier implementa auth.AuthVerifier validando tokens HS256 localmente.
type Verifier struct {
	secret []byte
	opts   []gojwt.ParserOption
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrNotConfigured
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{"HS256"}),
		gojwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, gojwt.WithLeeway(cfg.Leeway))
	}

	return &Verifier{secret: []byte(cfg.Secret), opts: opts}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	var c tokenClaims
	_, err := gojwt.ParseWithClaims(token, &c, func(*gojwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("verify token: %w", err)
	}

	sub := strings.TrimSpace(c.Subject)
	if sub == "" {
		return auth.Claims{}, ErrMissingSubject
	}

	return auth.Claims{
		UserID: sub,
		Email:  strings.TrimSpace(c.Email),
		Role:   strings.ToLower(strings.TrimSpace(c.Role)),
	}, nil
}

// Issue firma un token; lo usa el CLI para emitir tokens de operador.
func (v *Verifier) Issue(userID, email, role, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := tokenClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, c).SignedString(v.secret)
}
