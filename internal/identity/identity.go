// Package identity verifies session tokens minted by the identity provider.
// A token's claims carry the wallet address the provider verified; the engine
// never trusts wallet fields asserted in request bodies.
package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
)

// SessionClaims are the JWT claims the identity provider signs per connection
type SessionClaims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"walletAddress"`
	Username      string `json:"username"`
	CharacterType string `json:"characterType,omitempty"`
}

// Verifier validates a session token and yields the caller identity
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

type jwtVerifier struct {
	publicKey *rsa.PublicKey
}

// NewJWTVerifier creates a Verifier from the provider's RSA public key in PEM format
func NewJWTVerifier(publicKeyPEM string) (Verifier, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode JWT public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("JWT public key is not RSA")
	}

	return &jwtVerifier{publicKey: rsaKey}, nil
}

// Verify parses and validates the token, returning the verified identity
func (v *jwtVerifier) Verify(token string) (domain.Identity, error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("invalid session token: %w", err)
	}
	if !parsed.Valid || claims.WalletAddress == "" {
		return domain.Identity{}, errors.New("invalid session token")
	}

	return domain.Identity{
		IsAuthenticated: true,
		WalletAddress:   claims.WalletAddress,
		Username:        claims.Username,
		CharacterType:   claims.CharacterType,
	}, nil
}
