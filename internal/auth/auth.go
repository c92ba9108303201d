// Package auth issues and checks the HS256 access/refresh token pair and
// password hashes used by the in-process test backend.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes the two halves of a token pair.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

const (
	defaultIssuer     = "srq20"
	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	clockSkew         = 5 * time.Second
)

// Claims carries the token type and numeric user id next to the registered claims.
type Claims struct {
	TokenType TokenType `json:"token_type"`
	UserID    int64     `json:"user_id"`
	jwt.RegisteredClaims
}

// Issuer signs and validates tokens with a shared secret.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithTTL overrides the access and refresh lifetimes. Non-positive values keep the default.
func WithTTL(access, refresh time.Duration) IssuerOption {
	return func(i *Issuer) {
		if access > 0 {
			i.accessTTL = access
		}
		if refresh > 0 {
			i.refreshTTL = refresh
		}
	}
}

// WithClock replaces time.Now, mostly for expiry tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer builds an Issuer for secret.
func NewIssuer(secret []byte, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	i := &Issuer{
		secret:     append([]byte(nil), secret...),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// IssuePair signs a fresh access and refresh token for the user.
func (i *Issuer) IssuePair(userID int64, username string) (access, refresh string, err error) {
	username = strings.TrimSpace(username)
	if userID <= 0 || username == "" {
		return "", "", fmt.Errorf("%w: user id and username are required", ErrInvalidInput)
	}
	access, err = i.sign(AccessToken, userID, username, i.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.sign(RefreshToken, userID, username, i.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (i *Issuer) sign(typ TokenType, userID int64, username string, ttl time.Duration) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		TokenType: typ,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and claims and checks the token type.
func (i *Issuer) Parse(token string, want TokenType) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithLeeway(clockSkew),
	)
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := i.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (i *Issuer) validateClaims(claims *Claims) error {
	if claims.Issuer != i.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.UserID <= 0 {
		return fmt.Errorf("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return fmt.Errorf("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return fmt.Errorf("token expiry precedes issued-at")
	}
	return nil
}
