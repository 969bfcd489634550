// Package authz contains the route classification and role-authorization
// decision engine. Both are pure functions over static tables: every route
// the server registers is either public, a webhook ingress path, or has
// exactly one rule in the authorization table.
package authz

import (
	"net/http"
	"strings"
)

// Classification is the gatekeeping category of a (method, path) pair.
type Classification int

const (
	// Gated requests require a valid bearer token and a role check.
	Gated Classification = iota
	// Public requests pass through with no credential at all.
	Public
	// WebhookBypass requests skip token auth; they are authenticated by
	// provider signature instead.
	WebhookBypass
	// WebSocketUpgrade requests are authenticated at upgrade time by the
	// WebSocket authenticator (token via query parameter plus origin
	// check), not by the bearer-header gate.
	WebSocketUpgrade
)

// webSocketPath is the event-stream upgrade endpoint.
const webSocketPath = "/ws"

// publicAllowlist is fixed at exactly two entries. Any new public route
// must be added here explicitly; nothing becomes public by accident.
var publicAllowlist = map[string]bool{
	http.MethodGet + " /":       true,
	http.MethodGet + " /health": true,
}

// webhookPrefixes are the ingress paths whose POSTs bypass token auth.
// Exactly three providers; matching is case-sensitive and segment-exact.
var webhookPrefixes = []string{
	"/webhooks/shopify",
	"/webhooks/stripe",
	"/webhooks/printful",
}

// skipMethods are handled entirely by the CORS layer and never reach the
// authorization engine.
var skipMethods = map[string]bool{
	http.MethodOptions: true,
}

// Classify decides how a request is gated. Only POST bypasses on webhook
// paths: any other method on the same prefixes stays Gated, and no
// ordinary rule grants access there, so it fails closed.
func Classify(method, path string) Classification {
	if publicAllowlist[method+" "+path] {
		return Public
	}
	if method == http.MethodPost && IsWebhookPath(path) {
		return WebhookBypass
	}
	if method == http.MethodGet && path == webSocketPath {
		return WebSocketUpgrade
	}
	return Gated
}

// SkipMethod reports whether the method is excluded from gatekeeping
// (CORS preflight).
func SkipMethod(method string) bool {
	return skipMethods[method]
}

// IsWebhookPath reports whether path matches a webhook ingress prefix by
// the exact-segment rule: equal to the prefix, or continuing with "/".
// "/webhooks/shop" does not match "/webhooks/shopify", and "/webhooks"
// alone matches nothing.
func IsWebhookPath(path string) bool {
	for _, prefix := range webhookPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// WebhookProvider returns the provider segment for a webhook ingress path,
// or "" if the path is not a webhook path.
func WebhookProvider(path string) string {
	for _, prefix := range webhookPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return strings.TrimPrefix(prefix, "/webhooks/")
		}
	}
	return ""
}
