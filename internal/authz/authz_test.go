package authz

import (
	"testing"

	"github.com/wardenhq/warden/internal/model"
)

// ---------------------------------------------------------------------------
// Classification tests
// ---------------------------------------------------------------------------

func TestClassifyPublicAllowlist(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   Classification
	}{
		{"GET", "/", Public},
		{"GET", "/health", Public},

		// Same paths with other methods are gated, not public.
		{"POST", "/", Gated},
		{"POST", "/health", Gated},
		{"DELETE", "/health", Gated},

		// Nothing near the allowlist qualifies.
		{"GET", "/healthz", Gated},
		{"GET", "/health/", Gated},
		{"GET", "//", Gated},
	}
	for _, tt := range tests {
		if got := Classify(tt.method, tt.path); got != tt.want {
			t.Errorf("Classify(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestClassifyWebhookBypass(t *testing.T) {
	for _, path := range []string{"/webhooks/shopify", "/webhooks/stripe", "/webhooks/printful", "/webhooks/shopify/orders"} {
		if got := Classify("POST", path); got != WebhookBypass {
			t.Errorf("Classify(POST %s) = %v, want WebhookBypass", path, got)
		}
		// Only POST bypasses. Everything else on the same path stays gated.
		for _, method := range []string{"GET", "PUT", "DELETE", "PATCH"} {
			if got := Classify(method, path); got != Gated {
				t.Errorf("Classify(%s %s) = %v, want Gated", method, path, got)
			}
		}
	}
}

func TestClassifyWebSocketUpgrade(t *testing.T) {
	if got := Classify("GET", "/ws"); got != WebSocketUpgrade {
		t.Fatalf("Classify(GET /ws) = %v, want WebSocketUpgrade", got)
	}
	if got := Classify("POST", "/ws"); got != Gated {
		t.Fatalf("Classify(POST /ws) = %v, want Gated", got)
	}
}

func TestSkipMethod(t *testing.T) {
	if !SkipMethod("OPTIONS") {
		t.Error("OPTIONS should be skipped")
	}
	for _, m := range []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD"} {
		if SkipMethod(m) {
			t.Errorf("%s should not be skipped", m)
		}
	}
}

func TestIsWebhookPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/webhooks/shopify", true},
		{"/webhooks/stripe", true},
		{"/webhooks/printful", true},
		{"/webhooks/shopify/orders/create", true},

		// Segment-exact matching: string prefixes are not enough.
		{"/webhooks/shop", false},
		{"/webhooks/shopifyy", false},
		{"/webhooks/stripe2", false},

		// The bare prefix and unknown providers match nothing.
		{"/webhooks", false},
		{"/webhooks/", false},
		{"/webhooks/github", false},
		{"/webhooks/status", false},

		// Case-sensitive.
		{"/webhooks/Shopify", false},
		{"/Webhooks/shopify", false},
	}
	for _, tt := range tests {
		if got := IsWebhookPath(tt.path); got != tt.want {
			t.Errorf("IsWebhookPath(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWebhookProvider(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/webhooks/shopify", "shopify"},
		{"/webhooks/stripe", "stripe"},
		{"/webhooks/printful/orders", "printful"},
		{"/webhooks/github", ""},
		{"/agents", ""},
	}
	for _, tt := range tests {
		if got := WebhookProvider(tt.path); got != tt.want {
			t.Errorf("WebhookProvider(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Authorization tests
// ---------------------------------------------------------------------------

func TestAuthorizeHierarchy(t *testing.T) {
	tests := []struct {
		role    model.Role
		method  string
		path    string
		allowed bool
	}{
		// viewer: read-only.
		{model.RoleViewer, "GET", "/agents", true},
		{model.RoleViewer, "GET", "/agents/abc123", true},
		{model.RoleViewer, "GET", "/workflows", true},
		{model.RoleViewer, "GET", "/webhooks/status", true},
		{model.RoleViewer, "POST", "/agents", false},
		{model.RoleViewer, "POST", "/agent/invoke", false},
		{model.RoleViewer, "DELETE", "/agents/abc123", false},

		// operator: viewer plus mutation, but not destructive admin ops.
		{model.RoleOperator, "GET", "/agents", true},
		{model.RoleOperator, "POST", "/agents", true},
		{model.RoleOperator, "PUT", "/agents/abc123", true},
		{model.RoleOperator, "POST", "/agent/invoke", true},
		{model.RoleOperator, "POST", "/agent/batch", true},
		{model.RoleOperator, "POST", "/workflows/wf1/run", true},
		{model.RoleOperator, "DELETE", "/agents/abc123", false},
		{model.RoleOperator, "DELETE", "/scheduler/triggers/t1", false},

		// admin: everything.
		{model.RoleAdmin, "GET", "/agents", true},
		{model.RoleAdmin, "POST", "/agents", true},
		{model.RoleAdmin, "DELETE", "/agents/abc123", true},
		{model.RoleAdmin, "DELETE", "/scheduler/triggers/t1", true},
	}
	for _, tt := range tests {
		err := Authorize(tt.role, tt.method, tt.path)
		if tt.allowed && err != nil {
			t.Errorf("Authorize(%s, %s %s): unexpected deny: %v", tt.role, tt.method, tt.path, err)
		}
		if !tt.allowed && err == nil {
			t.Errorf("Authorize(%s, %s %s): expected deny", tt.role, tt.method, tt.path)
		}
	}
}

func TestAuthorizeWebhookRoleIsolated(t *testing.T) {
	// The webhook role may only POST to its two allowlisted paths.
	if err := Authorize(model.RoleWebhook, "POST", "/agent/invoke"); err != nil {
		t.Errorf("webhook POST /agent/invoke: unexpected deny: %v", err)
	}
	if err := Authorize(model.RoleWebhook, "POST", "/agent/batch"); err != nil {
		t.Errorf("webhook POST /agent/batch: unexpected deny: %v", err)
	}

	denied := []struct {
		method, path string
	}{
		{"GET", "/agents"},
		{"POST", "/agents"},
		{"GET", "/agent/invoke"},
		{"DELETE", "/agents/abc"},
		{"GET", "/webhooks/status"},
		{"POST", "/workflows/wf1/run"},
	}
	for _, d := range denied {
		if err := Authorize(model.RoleWebhook, d.method, d.path); err == nil {
			t.Errorf("webhook %s %s: expected deny", d.method, d.path)
		}
	}
}

func TestAuthorizeFailsClosedOnUnknownRoute(t *testing.T) {
	// A gated path without a table rule requires admin.
	if err := Authorize(model.RoleOperator, "GET", "/internal/debug"); err == nil {
		t.Fatal("operator on unmatched route: expected deny")
	}
	if err := Authorize(model.RoleAdmin, "GET", "/internal/debug"); err != nil {
		t.Fatalf("admin on unmatched route: unexpected deny: %v", err)
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/agents", "/agents", true},
		{"/agents/{agent_id}", "/agents/abc", true},
		{"/agents/{agent_id}", "/agents/abc/extra", false},
		{"/agents/{agent_id}", "/agents", false},
		{"/workflows/{workflow_id}/run", "/workflows/wf1/run", true},
		{"/workflows/{workflow_id}/run", "/workflows/wf1/stop", false},
		{"/agents", "/Agents", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchPattern(%s, %s) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestTableCoversOnlyGatedRoutes(t *testing.T) {
	// Every table entry must itself classify as Gated; a rule for a public
	// or webhook path would be dead and misleading.
	for _, rule := range Table {
		samplePath := rule.Pattern
		if got := Classify(rule.Method, samplePath); got != Gated {
			t.Errorf("table rule %s %s classifies as %v, want Gated", rule.Method, rule.Pattern, got)
		}
	}
}
