package authz

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wardenhq/warden/internal/model"
)

var (
	// ErrForbidden means the credential was valid but the role is
	// insufficient for the route.
	ErrForbidden = errors.New("insufficient role")
)

// Rule maps one (method, path pattern) to the minimum role required.
// Pattern segments wrapped in braces ({agent_id}) match any single path
// segment; matching is positional, not regex.
type Rule struct {
	Method  string
	Pattern string
	MinRole model.Role
}

// Table is the statically declared authorization table for every gated
// route the server registers. The server's route registration test asserts
// this table is complete; an unmatched route at runtime fails closed.
var Table = []Rule{
	{http.MethodGet, "/agents", model.RoleViewer},
	{http.MethodPost, "/agents", model.RoleOperator},
	{http.MethodGet, "/agents/{agent_id}", model.RoleViewer},
	{http.MethodPut, "/agents/{agent_id}", model.RoleOperator},
	{http.MethodDelete, "/agents/{agent_id}", model.RoleAdmin},
	{http.MethodPost, "/agent/invoke", model.RoleOperator},
	{http.MethodPost, "/agent/batch", model.RoleOperator},
	{http.MethodGet, "/scheduler/triggers", model.RoleViewer},
	{http.MethodPost, "/scheduler/triggers", model.RoleOperator},
	{http.MethodDelete, "/scheduler/triggers/{trigger_id}", model.RoleAdmin},
	{http.MethodGet, "/workflows", model.RoleViewer},
	{http.MethodPost, "/workflows/{workflow_id}/run", model.RoleOperator},
	{http.MethodGet, "/webhooks/status", model.RoleViewer},
}

// webhookAllowedPaths are the only operations the synthetic webhook role
// may perform, all POST. The webhook role never gains any other route and
// standard roles never gain entry through this table.
var webhookAllowedPaths = map[string]bool{
	"/agent/invoke": true,
	"/agent/batch":  true,
}

// Authorize decides whether a role may call (method, path). The webhook
// role is checked only against its own allowlist; all other roles are
// compared against the table rule's minimum role using the hierarchy.
// A gated path with no rule requires the highest role (fail closed).
func Authorize(role model.Role, method, path string) error {
	if role == model.RoleWebhook {
		if method == http.MethodPost && webhookAllowedPaths[path] {
			return nil
		}
		return fmt.Errorf("%w: webhook role may not call %s %s", ErrForbidden, method, path)
	}

	min, ok := lookupRule(method, path)
	if !ok {
		// Configuration defect: a registered route without a rule.
		// Require admin rather than permit.
		min = model.RoleAdmin
	}
	if !role.Satisfies(min) {
		return fmt.Errorf("%w: %s %s requires %s", ErrForbidden, method, path, min)
	}
	return nil
}

// lookupRule resolves the table rule for a concrete request path.
func lookupRule(method, path string) (model.Role, bool) {
	for _, rule := range Table {
		if rule.Method == method && matchPattern(rule.Pattern, path) {
			return rule.MinRole, true
		}
	}
	return "", false
}

// matchPattern compares a pattern and a concrete path segment by segment.
// A "{name}" segment matches any single non-empty segment.
func matchPattern(pattern, path string) bool {
	if pattern == path {
		return true
	}
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	cs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(cs) {
		return false
	}
	for i, seg := range ps {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if cs[i] == "" {
				return false
			}
			continue
		}
		if seg != cs[i] {
			return false
		}
	}
	return true
}
