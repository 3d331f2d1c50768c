package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Passw0rd", true},
		{"LongEnough1", true},
		{"short1A", false},       // under 8 chars
		{"alllowercase1", false}, // no uppercase
		{"ALLUPPERCASE1", false}, // no lowercase
		{"NoDigitsHere", false},  // no digit
		{"", false},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.ok && err != nil {
			t.Errorf("ValidatePassword(%q) = %v, want nil", tc.password, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidatePassword(%q) = nil, want error", tc.password)
		}
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Passw0rd")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "Passw0rd" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPassword("Passw0rd", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("WrongPass1", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-123", "user@example.com", true, false, "secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("expected subject user-123, got %s", claims.Subject)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("expected email user@example.com, got %s", claims.Email)
	}
	if !claims.Staff || claims.Superuser {
		t.Fatalf("flags lost: staff=%v superuser=%v", claims.Staff, claims.Superuser)
	}

	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != AccessTokenTTL {
		t.Fatalf("expected TTL %v, got %v", AccessTokenTTL, ttl)
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	token, _ := GenerateAccessToken("user-123", "user@example.com", false, false, "secret")
	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseAccessToken(token, "secret"); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	a := GenerateRefreshToken()
	b := GenerateRefreshToken()
	if a == "" || a == b {
		t.Fatalf("refresh tokens must be unique and non-empty: %q %q", a, b)
	}
}
