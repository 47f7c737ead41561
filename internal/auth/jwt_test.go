package auth

import (
	"testing"
	"time"

	"callpulse/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "test-secret",
		JWTIssuer:      "callpulse",
		JWTAudience:    "callpulse-api",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}); err == nil {
		t.Fatal("empty secret accepted")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	tok, err := m.IssueAccess(now, "user-1", "operator")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "operator" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("token_type = %q", claims.TokenType)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	tok, err := m.IssueAccess(now, "user-1", "operator")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	// Past TTL plus leeway.
	if _, err := m.Verify(tok, TokenTypeAccess, now.Add(16*time.Minute)); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	tok, err := m.IssueAccess(now, "user-1", "operator")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	other, err := NewManager(config.AuthConfig{JWTSecret: "different-secret", AccessTokenTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := other.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	now := time.Now()

	issuer, err := NewManager(config.AuthConfig{JWTSecret: "test-secret", JWTIssuer: "someone-else", AccessTokenTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok, err := issuer.IssueAccess(now, "user-1", "operator")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	if _, err := testManager(t).Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatal("token with wrong issuer accepted")
	}
}

func TestVerifyRejectsMissingRole(t *testing.T) {
	m := testManager(t)
	now := time.Now()

	tok, err := m.IssueAccess(now, "user-1", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatal("access token without role accepted")
	}
}
