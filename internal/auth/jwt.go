package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campusportal/internal/model"
)

type Claims struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Session returns the identity carried by the claims.
func (c *Claims) Session() *Session {
	return &Session{
		Identity: model.Identity{AuthID: c.UserID, Email: strings.TrimSpace(c.Email)},
		Role:     model.Role(c.UserType),
	}
}

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Verifier checks access tokens issued by the auth provider. An RSA public key
// takes precedence over the shared secret when both are configured.
type Verifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
}

func NewVerifier(secret, publicKeyPEM, issuer string) (*Verifier, error) {
	v := &Verifier{issuer: issuer}
	if publicKeyPEM != "" {
		key, err := ParseRSAPublicKey(publicKeyPEM)
		if err != nil {
			return nil, err
		}
		v.publicKey = key
		return v, nil
	}
	if secret == "" {
		return nil, errors.New("missing_jwt_secret")
	}
	v.secret = []byte(secret)
	return v, nil
}

func (v *Verifier) ParseToken(tokenString string) (*Claims, error) {
	options := []jwt.ParserOption{}
	if v.publicKey != nil {
		options = append(options, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	} else {
		options = append(options, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.secret, nil
	}, options...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" || !model.Role(claims.UserType).Valid() {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func ParseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("invalid_public_key")
	}
	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		publicKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("invalid_public_key_type")
		}
		return publicKey, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, errors.New("invalid_public_key")
	}
}

func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
