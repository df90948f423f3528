package ws

import (
	"errors"
	"testing"
	"time"

	"collab-realtime/internal/domain"
)

func TestTokenManagerMintVerify(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)

	token, err := m.Mint("u1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("UserID = %q", claims.UserID)
	}
}

func TestTokenManagerRejectsBadTokens(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	good, _ := m.Mint("u1")

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"truncated", good[:len(good)-10]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Verify(tc.token); !errors.Is(err, domain.ErrAuth) {
				t.Fatalf("Verify(%q) err = %v, want ErrAuth", tc.token, err)
			}
		})
	}
}

func TestTokenManagerRejectsWrongSecret(t *testing.T) {
	a := NewTokenManager("secret-a", time.Hour)
	b := NewTokenManager("secret-b", time.Hour)

	token, _ := a.Mint("u1")
	if _, err := b.Verify(token); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("cross-secret Verify err = %v, want ErrAuth", err)
	}
}

func TestTokenManagerRejectsExpired(t *testing.T) {
	m := NewTokenManager("test-secret", -time.Minute)
	token, err := m.Mint("u1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Verify(token); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expired Verify err = %v, want ErrAuth", err)
	}
}
