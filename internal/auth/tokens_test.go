package auth

import (
	"strings"
	"testing"
	"time"
)

func TestIdentityRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	playerID, token, err := issuer.NewIdentity("Alice")
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if playerID == "" || token == "" {
		t.Fatal("empty identity")
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PlayerID != playerID {
		t.Fatalf("player id = %q, want %q", claims.PlayerID, playerID)
	}
	if claims.Name != "Alice" {
		t.Fatalf("name = %q, want Alice", claims.Name)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	_, token, err := NewIssuer("secret-a", time.Hour).NewIdentity("Alice")
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if _, err := NewIssuer("secret-b", time.Hour).Verify(token); err == nil {
		t.Fatal("token signed with another secret verified")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	_, token, err := issuer.NewIdentity("Alice")
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	parts := strings.Split(token, ".")
	parts[1] = strings.ToUpper(parts[1])
	if _, err := issuer.Verify(strings.Join(parts, ".")); err == nil {
		t.Fatal("tampered token verified")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Minute)
	_, token, err := issuer.NewIdentity("Alice")
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("expired token verified")
	}
}
