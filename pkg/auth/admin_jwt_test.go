package auth

import (
	"testing"
	"time"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"bearer abc123", "abc123", false},
		{"", "", true},
		{"abc123", "", true},
		{"Bearer ", "", true},
		{"Basic abc123", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	a, err := NewAdminAuth("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := a.GenerateToken("ops@example.com")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "ops@example.com" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	a1, _ := NewAdminAuth("secret-one", time.Hour)
	a2, _ := NewAdminAuth("secret-two", time.Hour)

	token, err := a1.GenerateToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a2.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret must be rejected")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewAdminAuth("", time.Hour); err == nil {
		t.Error("empty secret must be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	a, _ := NewAdminAuth("test-secret", time.Nanosecond)
	token, err := a.GenerateToken("ops")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := a.ValidateToken(token); err == nil {
		t.Error("expired token must be rejected")
	}
}
