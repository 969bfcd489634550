package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/wardenhq/warden/internal/authz"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/service"
	"github.com/wardenhq/warden/internal/stream"
	"github.com/wardenhq/warden/internal/webhook"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testJWTSecret     = "test-secret-for-gateway-integration-tests"
	testShopifySecret = "shpss_integration_secret"
	testOrigin        = "http://localhost:3000"
)

type testEnv struct {
	server  *Server
	store   *config.Store
	authSvc *service.AuthService
}

// newTestEnv creates a fresh environment with an in-memory state store, a
// memory idempotency store, and a fully wired Server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	authSvc := service.NewAuthService(testJWTSecret)
	verifier := webhook.NewVerifier(map[string]string{"shopify": testShopifySecret}, 5*time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	srv := New(cfg, store, authSvc, verifier, webhook.NewMemoryStore(time.Hour), stream.NewHub(), logger)

	return &testEnv{server: srv, store: store, authSvc: authSvc}
}

func (e *testEnv) token(t *testing.T, role model.Role) string {
	t.Helper()
	token, err := e.authSvc.Issue(role, "it-test", time.Hour)
	if err != nil {
		t.Fatalf("Issue(%s): %v", role, err)
	}
	return token
}

// do runs one request through the full middleware stack.
func (e *testEnv) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) seedAgent(t *testing.T) *model.Agent {
	t.Helper()
	agent := &model.Agent{Name: "seeded-agent", IsActive: true}
	if err := e.store.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("seedAgent: %v", err)
	}
	return agent
}

func shopifySignature(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testShopifySecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Public surface
// ---------------------------------------------------------------------------

func TestPublicRoutesNeedNoToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/", "/health"} {
		rr := env.do("GET", path, "", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestEverythingElseNeedsToken(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct{ method, path string }{
		{"GET", "/agents"},
		{"POST", "/agents"},
		{"POST", "/agent/invoke"},
		{"GET", "/scheduler/triggers"},
		{"GET", "/workflows"},
		{"GET", "/webhooks/status"},
		{"GET", "/webhooks/shopify"}, // only POST bypasses
		{"GET", "/unknown/path"},
	}
	for _, c := range cases {
		rr := env.do(c.method, c.path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: expected 401, got %d", c.method, c.path, rr.Code)
		}
	}
}

func TestAuthPrecedesBodyValidation(t *testing.T) {
	env := newTestEnv(t)
	garbage := []byte(`{definitely not json`)

	// No token plus an invalid body must report the auth failure.
	rr := env.do("POST", "/agents", "", garbage)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before body validation, got %d", rr.Code)
	}

	// With a valid token the same body surfaces the 400.
	rr = env.do("POST", "/agents", env.token(t, model.RoleOperator), garbage)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with valid token, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Role enforcement through the full stack
// ---------------------------------------------------------------------------

func TestRoleEnforcement(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t)

	viewer := env.token(t, model.RoleViewer)
	operator := env.token(t, model.RoleOperator)
	admin := env.token(t, model.RoleAdmin)

	if rr := env.do("GET", "/agents", viewer, nil); rr.Code != http.StatusOK {
		t.Errorf("viewer GET /agents: expected 200, got %d", rr.Code)
	}
	if rr := env.do("POST", "/agents", viewer, []byte(`{"name":"x"}`)); rr.Code != http.StatusForbidden {
		t.Errorf("viewer POST /agents: expected 403, got %d", rr.Code)
	}
	if rr := env.do("DELETE", "/agents/"+agent.ID, operator, nil); rr.Code != http.StatusForbidden {
		t.Errorf("operator DELETE agent: expected 403, got %d", rr.Code)
	}
	if rr := env.do("DELETE", "/agents/"+agent.ID, admin, nil); rr.Code != http.StatusNoContent {
		t.Errorf("admin DELETE agent: expected 204, got %d", rr.Code)
	}
}

func TestWebhookRoleThroughStack(t *testing.T) {
	env := newTestEnv(t)
	agent := env.seedAgent(t)
	token := env.token(t, model.RoleWebhook)

	body := []byte(`{"agent_id":"` + agent.ID + `"}`)
	if rr := env.do("POST", "/agent/invoke", token, body); rr.Code != http.StatusAccepted {
		t.Errorf("webhook role POST /agent/invoke: expected 202, got %d: %s", rr.Code, rr.Body)
	}
	if rr := env.do("GET", "/agents", token, nil); rr.Code != http.StatusForbidden {
		t.Errorf("webhook role GET /agents: expected 403, got %d", rr.Code)
	}
	if rr := env.do("GET", "/webhooks/status", token, nil); rr.Code != http.StatusForbidden {
		t.Errorf("webhook role GET /webhooks/status: expected 403, got %d", rr.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	issuer := service.NewAuthService(testJWTSecret)
	token, err := issuer.Issue(model.RoleAdmin, "", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rr := env.do("GET", "/agents", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Webhook ingress through the full stack
// ---------------------------------------------------------------------------

func TestWebhookIngressThroughStack(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"id":"evt_int_1","type":"orders/create"}`)

	req := httptest.NewRequest("POST", "/webhooks/shopify", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", shopifySignature(body))
	req.Header.Set("X-Shopify-Webhook-Id", "wh-int-1")
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("signed delivery: expected 202, got %d: %s", rr.Code, rr.Body)
	}

	// Unsigned POST reaches the handler (no token required) and is
	// rejected by the signature check, not the token gate.
	req = httptest.NewRequest("POST", "/webhooks/shopify", bytes.NewReader(body))
	rr = httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned delivery: expected 401, got %d", rr.Code)
	}
	if strings.Contains(strings.ToLower(rr.Body.String()), "token") {
		t.Errorf("signature rejection mentions tokens: %s", rr.Body)
	}

	// The status endpoint reflects both deliveries.
	statusRR := env.do("GET", "/webhooks/status", env.token(t, model.RoleViewer), nil)
	if statusRR.Code != http.StatusOK {
		t.Fatalf("GET /webhooks/status: expected 200, got %d", statusRR.Code)
	}
	var resp struct {
		Resource []model.ProviderStatus `json:"resource"`
	}
	if err := json.Unmarshal(statusRR.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if len(resp.Resource) != 1 || resp.Resource[0].Accepted != 1 || resp.Resource[0].Rejected != 1 {
		t.Errorf("unexpected status payload: %+v", resp.Resource)
	}
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func preflight(srv *Server, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("OPTIONS", "/agents", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestCORSEchoesExactAllowedOrigin(t *testing.T) {
	env := newTestEnv(t)

	rr := preflight(env.server, testOrigin)
	got := rr.Header().Get("Access-Control-Allow-Origin")
	if got != testOrigin {
		t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, testOrigin)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected Access-Control-Allow-Credentials: true")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	env := newTestEnv(t)

	rr := preflight(env.server, "https://evil.example.com")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin got Access-Control-Allow-Origin %q", got)
	}
}

func TestCORSNeverWildcardsWithCredentials(t *testing.T) {
	// A "*" entry in the config is dropped rather than echoed.
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"*"}
	srv := New(cfg, store, service.NewAuthService(testJWTSecret),
		webhook.NewVerifier(nil, time.Minute), webhook.NewMemoryStore(time.Hour),
		stream.NewHub(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rr := preflight(srv, "https://anything.example.com")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("wildcard config leaked Access-Control-Allow-Origin %q", got)
	}
}

// ---------------------------------------------------------------------------
// WebSocket gate
// ---------------------------------------------------------------------------

func TestWebSocketRequiresQueryToken(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do("GET", "/ws", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("GET /ws without token: expected 401, got %d", rr.Code)
	}
	if rr := env.do("GET", "/ws?token=garbage", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("GET /ws with bad token: expected 401, got %d", rr.Code)
	}
}

func TestWebSocketRejectsWebhookRole(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, model.RoleWebhook)

	rr := env.do("GET", "/ws?token="+token, "", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("webhook role on /ws: expected 403, got %d", rr.Code)
	}
}

func TestWebSocketConnectsWithValidTokenAndOrigin(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, model.RoleViewer)

	ts := httptest.NewServer(env.server)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{testOrigin}},
	})
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var evt stream.Event
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatalf("read ready event: %v", err)
	}
	if evt.Type != "ready" {
		t.Fatalf("first event type = %q, want %q", evt.Type, "ready")
	}

	// A published event reaches the connected subscriber.
	env.server.events.Publish(stream.NewEvent("agent.created", map[string]string{"id": "a1"}))
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatalf("read published event: %v", err)
	}
	if evt.Type != "agent.created" {
		t.Fatalf("event type = %q, want %q", evt.Type, "agent.created")
	}
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, model.RoleViewer)

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("disallowed origin on /ws: expected 403, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), token) {
		t.Error("response echoed the token")
	}
}

// ---------------------------------------------------------------------------
// Route table completeness
// ---------------------------------------------------------------------------

func TestEveryRegisteredRouteIsClassified(t *testing.T) {
	env := newTestEnv(t)

	tableRules := make(map[string]bool, len(authz.Table))
	for _, rule := range authz.Table {
		tableRules[rule.Method+" "+rule.Pattern] = true
	}

	err := chi.Walk(env.server.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(route, "/")
		if route == "" {
			route = "/"
		}

		switch authz.Classify(method, route) {
		case authz.Public, authz.WebSocketUpgrade:
			return nil
		case authz.WebhookBypass:
			return nil
		}
		if !tableRules[method+" "+route] {
			t.Errorf("registered route %s %s has no authorization rule", method, route)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("chi.Walk: %v", err)
	}
}
