package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestWidgetTokenRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	token, expiresAt, err := issuer.GenerateWidgetToken("widget-123")
	if err != nil {
		t.Fatalf("GenerateWidgetToken failed: %v", err)
	}

	if d := time.Until(expiresAt); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("Expected roughly 24h expiry, got %s", d)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.WidgetID != "widget-123" {
		t.Errorf("Expected widget-123, got %s", claims.WidgetID)
	}
	if claims.Role != RoleWidget {
		t.Errorf("Expected widget role, got %s", claims.Role)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	other, _ := NewIssuer("another-secret")

	token, _, _ := other.GenerateWidgetToken("widget-123")
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	if _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected malformed token to be rejected")
	}

	expired, _ := NewIssuer("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, _, _ = expired.GenerateWidgetToken("widget-123")
	if _, err := issuer.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected expired token error, got %v", err)
	}

	deviceToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		WidgetID: "widget-123",
		Role:     "device",
	}).SignedString([]byte("test-secret"))
	if _, err := issuer.ValidateToken(deviceToken); !errors.Is(err, ErrInvalidClaims) {
		t.Errorf("Expected ErrInvalidClaims for foreign role, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(""); err == nil {
		t.Error("Expected error for empty secret")
	}
}
