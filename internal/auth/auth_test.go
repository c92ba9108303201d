package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestIssuePairAndParse(t *testing.T) {
	iss, err := NewIssuer([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	access, refresh, err := iss.IssuePair(42, "maria")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if access == refresh {
		t.Fatalf("access and refresh tokens must differ")
	}

	claims, err := iss.Parse(access, AccessToken)
	if err != nil {
		t.Fatalf("Parse access: %v", err)
	}
	if claims.Subject != "maria" || claims.UserID != 42 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}

	if _, err := iss.Parse(refresh, RefreshToken); err != nil {
		t.Fatalf("Parse refresh: %v", err)
	}
	if _, err := iss.Parse(refresh, AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	iss, err := NewIssuer([]byte("test-secret"), WithTTL(time.Minute, time.Hour), WithClock(clock))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	access, _, err := iss.IssuePair(1, "joao")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := iss.Parse(access, AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	a, _ := NewIssuer([]byte("secret-a"))
	b, _ := NewIssuer([]byte("secret-b"))
	access, _, err := a.IssuePair(7, "ana")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := b.Parse(access, AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	iss, _ := NewIssuer([]byte("test-secret"))
	claims := Claims{
		TokenType: AccessToken,
		UserID:    1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Subject:   "ana",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.Parse(unsigned, AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuerInputValidation(t *testing.T) {
	if _, err := NewIssuer(nil); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	iss, _ := NewIssuer([]byte("s"))
	if _, _, err := iss.IssuePair(0, "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := iss.Parse("  ", AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3nha-forte", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword(hash, "s3nha-forte"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, err := HashPassword("", bcrypt.MinCost); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
