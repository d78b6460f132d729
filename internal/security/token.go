package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hamo/backend/internal/config"
)

var ErrInvalidToken = errors.New("invalid token")

// IdentityClaims is the subset of identity-provider token claims the API relies on.
type IdentityClaims struct {
	TokenUse   string `json:"token_use"`
	Role       string `json:"role,omitempty"`
	CustomRole string `json:"custom:role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is a verified bearer token.
type Identity struct {
	SubjectID string
	TokenUse  string
	Role      string
}

// TokenVerifier checks bearer tokens issued by the identity provider. Tokens are
// verified with an RSA public key when one is configured, otherwise with a shared secret.
type TokenVerifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	tokenUse  string
}

func NewTokenVerifier(cfg config.SecurityConfig) (*TokenVerifier, error) {
	v := &TokenVerifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		tokenUse: cfg.TokenUse,
	}
	if pem := strings.TrimSpace(cfg.JWTPublicKey); pem != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.publicKey = key
	}
	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, errors.New("security: jwt secret or public key required")
	}
	return v, nil
}

func (v *TokenVerifier) Verify(tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &IdentityClaims{}, v.keyFunc, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if v.tokenUse != "" && claims.TokenUse != v.tokenUse {
		return Identity{}, fmt.Errorf("%w: token_use %q", ErrInvalidToken, claims.TokenUse)
	}

	role := claims.CustomRole
	if role == "" {
		role = claims.Role
	}
	return Identity{SubjectID: claims.Subject, TokenUse: claims.TokenUse, Role: role}, nil
}

func (v *TokenVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.publicKey != nil {
			return v.publicKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if v.publicKey == nil {
			return v.secret, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// IssueToken signs an HS256 identity token. Used for local development and tests.
func IssueToken(secret, issuer, subject, tokenUse, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		TokenUse: tokenUse,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
