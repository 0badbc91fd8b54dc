package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims ties a signed token to one voice-query attempt. The backend
// uses the session ID to correlate the stream with later recovery polls, and
// the generation to reject stale probes.
type SessionClaims struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
	jwt.RegisteredClaims
}

// TokenSigner mints and validates session tokens
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

const defaultTokenTTL = time.Hour

// NewTokenSigner creates a signer with the given secret
func NewTokenSigner(secret []byte) *TokenSigner {
	return &TokenSigner{secret: secret, ttl: defaultTokenTTL}
}

// SignerFromEnv builds a signer from SAGE_SESSION_SECRET, falling back to a
// development secret when unset.
func SignerFromEnv() *TokenSigner {
	secret := os.Getenv("SAGE_SESSION_SECRET")
	if secret == "" {
		secret = "sage-voice-dev-secret"
	}
	return NewTokenSigner([]byte(secret))
}

// SignSession generates a token for one session attempt
func (t *TokenSigner) SignSession(sessionID string, generation uint64) (string, error) {
	claims := &SessionClaims{
		SessionID:  sessionID,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken parses a session token and returns its claims
func (t *TokenSigner) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
