package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusportal/internal/model"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID:   "user-1",
		UserType: "student",
		Email:    "student@campus.test",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	verifier, err := NewVerifier("secret", "", "issuer")
	if err != nil {
		t.Fatalf("verifier error: %v", err)
	}

	claims, err := verifier.ParseToken(token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	session := claims.Session()
	if session.AuthID != "user-1" || session.Role != model.RoleStudent || session.Email != "student@campus.test" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestParseTokenRejectsWrongIssuerAndRole(t *testing.T) {
	verifier, _ := NewVerifier("secret", "", "issuer")

	token, _ := NewAccessToken("secret", "other", time.Minute, Claims{UserID: "u", UserType: "student"})
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected issuer mismatch to fail")
	}

	token, _ = NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "u", UserType: "dev"})
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected unknown role to fail")
	}

	token, _ = NewAccessToken("secret", "issuer", -time.Minute, Claims{UserID: "u", UserType: "student"})
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestRS256Verifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	claims := Claims{
		UserID:   "faculty-1",
		UserType: "faculty",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	verifier, err := NewVerifier("", publicPEM, "issuer")
	if err != nil {
		t.Fatalf("verifier error: %v", err)
	}
	parsed, err := verifier.ParseToken(signed)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.UserID != "faculty-1" {
		t.Fatalf("unexpected user %s", parsed.UserID)
	}

	hsToken, _ := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "u", UserType: "student"})
	if _, err := verifier.ParseToken(hsToken); err == nil {
		t.Fatalf("expected HS256 token to be rejected by RS256 verifier")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearerabc":    "",
	}
	for header, expected := range cases {
		if got := BearerToken(header); got != expected {
			t.Fatalf("header %q expected %q got %q", header, expected, got)
		}
	}
}

func TestHolderSignInSignOut(t *testing.T) {
	var holder Holder
	if s, _ := holder.Session(context.Background()); s != nil {
		t.Fatalf("expected empty holder")
	}
	holder.SignIn(Session{Identity: model.Identity{AuthID: "a", Email: "a@x"}, Role: model.RoleStudent})
	s, _ := holder.Session(context.Background())
	if s == nil || s.AuthID != "a" {
		t.Fatalf("expected signed-in session, got %+v", s)
	}
	identity, ok := holder.SignOut()
	if !ok || identity.AuthID != "a" {
		t.Fatalf("expected sign out of a, got %+v %v", identity, ok)
	}
	if _, ok := holder.SignOut(); ok {
		t.Fatalf("expected second sign out to report nothing")
	}
}
