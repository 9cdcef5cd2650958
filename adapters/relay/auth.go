package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const authTokenTTL = 24 * time.Hour

// GenerateAuthKey creates a fresh ed25519 keypair for bridge
// authentication.
func GenerateAuthKey() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate auth key: %w", err)
	}
	return key, nil
}

// AuthToken signs a short-lived EdDSA JWT identifying clientID to the
// bridge at audience bridgeURL.
func AuthToken(key ed25519.PrivateKey, clientID, bridgeURL string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{bridgeURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(authTokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign auth token: %w", err)
	}
	return signed, nil
}

// VerifyAuthToken checks an EdDSA token against the issuer's public
// key and the expected bridge audience and returns the client id.
func VerifyAuthToken(tokenStr string, pub ed25519.PublicKey, bridgeURL string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return pub, nil
	}, jwt.WithAudience(bridgeURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse auth token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid auth token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims type")
	}
	return claims.Subject, nil
}
