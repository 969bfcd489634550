package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/model"
)

const testSecret = "test-signing-secret-at-least-32-bytes"

func TestIssueValidateRoundTrip(t *testing.T) {
	svc := NewAuthService(testSecret)

	for _, role := range []model.Role{model.RoleViewer, model.RoleOperator, model.RoleAdmin, model.RoleWebhook} {
		token, err := svc.Issue(role, "ci-bot", time.Hour)
		if err != nil {
			t.Fatalf("Issue(%s): %v", role, err)
		}

		md, err := svc.Validate(token)
		if err != nil {
			t.Fatalf("Validate(%s): %v", role, err)
		}
		if md.Role != role {
			t.Errorf("round trip role = %q, want %q", md.Role, role)
		}
		if md.Subject != "ci-bot" {
			t.Errorf("round trip subject = %q, want %q", md.Subject, "ci-bot")
		}
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewAuthService(testSecret)

	token, err := svc.Issue(model.RoleAdmin, "", 10*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Advance the clock past the 10s TTL; the token must be rejected even
	// though it was well-formed moments ago.
	svc.now = func() time.Time { return time.Now().Add(20 * time.Second) }

	_, err = svc.Validate(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Validate after expiry: got %v, want ErrTokenExpired", err)
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	svc := NewAuthService(testSecret)

	token, err := svc.Issue(model.RoleViewer, "", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip one character in the payload segment.
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 JWT segments, got %d", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := svc.Validate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate(tampered): got %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(testSecret)
	validator := NewAuthService("a-completely-different-secret")

	token, err := issuer.Issue(model.RoleOperator, "", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := validator.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate with wrong secret: got %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewAuthService(testSecret)

	for _, bad := range []string{"", "not-a-token", "a.b.c", "eyJhbGciOiJub25lIn0..", strings.Repeat("x", 4096)} {
		if _, err := svc.Validate(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Validate(%.20q): got %v, want ErrInvalidToken", bad, err)
		}
	}
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	svc := NewAuthService(testSecret)
	if _, err := svc.Issue(model.Role("root"), "", time.Hour); err == nil {
		t.Fatal("Issue with unknown role: expected error")
	}
}
