package ws

import (
	"fmt"
	"time"

	"collab-realtime/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ChannelClaims is the credential carried in the token query parameter of
// every push connection.
type ChannelClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies channel credentials. Verification failures
// map to domain.ErrAuth, which channels treat as fatal and never retry.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) Mint(userID string) (string, error) {
	now := time.Now()
	claims := ChannelClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *TokenManager) Verify(token string) (*ChannelClaims, error) {
	if token == "" {
		return nil, domain.ErrAuth
	}
	var claims ChannelClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, domain.ErrAuth
	}
	return &claims, nil
}
