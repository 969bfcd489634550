package model

import "testing"

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"viewer", "operator", "admin", "webhook"} {
		r, err := ParseRole(valid)
		if err != nil {
			t.Errorf("ParseRole(%q): unexpected error %v", valid, err)
		}
		if string(r) != valid {
			t.Errorf("ParseRole(%q) = %q", valid, r)
		}
	}

	for _, invalid := range []string{"", "Admin", "root", "superuser", "VIEWER"} {
		if _, err := ParseRole(invalid); err == nil {
			t.Errorf("ParseRole(%q): expected error", invalid)
		}
	}
}

func TestSatisfiesHierarchy(t *testing.T) {
	tests := []struct {
		role Role
		min  Role
		want bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleOperator, false},
		{RoleViewer, RoleAdmin, false},
		{RoleOperator, RoleViewer, true},
		{RoleOperator, RoleOperator, true},
		{RoleOperator, RoleAdmin, false},
		{RoleAdmin, RoleViewer, true},
		{RoleAdmin, RoleOperator, true},
		{RoleAdmin, RoleAdmin, true},
	}
	for _, tt := range tests {
		if got := tt.role.Satisfies(tt.min); got != tt.want {
			t.Errorf("%s.Satisfies(%s) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestWebhookRoleOutsideHierarchy(t *testing.T) {
	// The webhook role never satisfies any hierarchical minimum, and no
	// hierarchical role satisfies a webhook minimum.
	for _, min := range []Role{RoleViewer, RoleOperator, RoleAdmin} {
		if RoleWebhook.Satisfies(min) {
			t.Errorf("webhook.Satisfies(%s) = true, want false", min)
		}
	}
	for _, r := range []Role{RoleViewer, RoleOperator, RoleAdmin} {
		if r.Satisfies(RoleWebhook) {
			t.Errorf("%s.Satisfies(webhook) = true, want false", r)
		}
	}
	if RoleWebhook.Satisfies(RoleWebhook) {
		t.Error("webhook.Satisfies(webhook) = true, want false")
	}
}

func TestIsHierarchical(t *testing.T) {
	for _, r := range []Role{RoleViewer, RoleOperator, RoleAdmin} {
		if !r.IsHierarchical() {
			t.Errorf("%s.IsHierarchical() = false, want true", r)
		}
	}
	if RoleWebhook.IsHierarchical() {
		t.Error("webhook.IsHierarchical() = true, want false")
	}
	if Role("nonsense").IsHierarchical() {
		t.Error("unknown role reported hierarchical")
	}
}
