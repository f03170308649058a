package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("0123456789abcdef", time.Hour)

	token, err := m.Issue(42)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	userID, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestParseRejects(t *testing.T) {
	m := NewTokenManager("0123456789abcdef", time.Hour)
	token, err := m.Issue(7)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	other := NewTokenManager("fedcba9876543210", time.Hour)

	expired := NewTokenManager("0123456789abcdef", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue(7)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	tests := []struct {
		name  string
		m     *TokenManager
		token string
	}{
		{name: "wrong secret", m: other, token: token},
		{name: "garbage", m: m, token: "not.a.jwt"},
		{name: "empty", m: m, token: ""},
		{name: "expired", m: m, token: stale},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.m.Parse(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
