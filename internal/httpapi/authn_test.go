package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crewhub.io/internal/auth"
)

func TestHijackCheckRejectsForeignUserAgent(t *testing.T) {
	api, _, store := newTestAPI(t)
	h := api.Handler()

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/signup",
		`{"email":"vic@example.com","password":"Passw0rd","name":"Vic"}`, nil, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: %d", rr.Code)
	}

	signin := httptest.NewRequest(http.MethodPost, "/v1/auth/signin",
		strings.NewReader(`{"email":"vic@example.com","password":"Passw0rd"}`))
	signin.Header.Set("Content-Type", "application/json")
	signin.Header.Set("User-Agent", "BrowserA/1.0")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signin)
	if rec.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	cookies := rec.Result().Cookies()

	// Same browser passes.
	me := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	me.Header.Set("User-Agent", "BrowserA/1.0")
	for _, c := range cookies {
		me.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, me)
	if rec.Code != http.StatusOK {
		t.Fatalf("same agent: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	// Stolen cookies replayed from a different client are refused.
	stolen := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	stolen.Header.Set("User-Agent", "BrowserB/2.0")
	for _, c := range cookies {
		stolen.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, stolen)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign agent: expected 403, got %d: %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["error"] != "forbidden" {
		t.Fatalf("hijack response leaks detail: %s", rec.Body)
	}

	found := false
	for _, entry := range store.AuditEntries() {
		if entry.Action == "auth.hijack_detected" && entry.Reason == "user_agent_mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing hijack audit entry")
	}
}

func TestHijackCheckSkipsSessionlessRequests(t *testing.T) {
	api, svc, _ := newTestAPI(t)
	h := api.Handler()

	signupAndSignin(t, h, "wes@example.com")
	bundle, _, err := svc.Signin(context.Background(), "wes@example.com", "Passw0rd",
		auth.ClientInfo{IPAddress: "192.0.2.1", UserAgent: "BrowserA/1.0"})
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}

	// Bearer-only requests carry no refresh cookie, so there is no session to
	// compare against, even from a different client.
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("User-Agent", "BrowserB/2.0")
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer request: expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestRequirePermission(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.requirePermission(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, "story:delete:all")

	// No principal in context.
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rr.Code)
	}

	member := auth.Principal{UserID: "u1", Level: auth.LevelUser,
		Permissions: map[string]struct{}{"story:create:own": {}}}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), member))
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("member: expected 403, got %d", rr.Code)
	}

	admin := auth.Principal{UserID: "u2", Level: auth.LevelAdmin}
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), admin))
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleLevel(t *testing.T) {
	api, _, _ := newTestAPI(t)
	handler := api.requireRoleLevel(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, auth.LevelPremium)

	premium := auth.Principal{UserID: "u1", Level: auth.LevelPremium}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), premium))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("premium: expected 200, got %d", rr.Code)
	}

	user := auth.Principal{UserID: "u2", Level: auth.LevelUser}
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), user))
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user: expected 403, got %d", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"Bearer   abc123  ", "abc123", true},
		{"", "", false},
		{"Bearer ", "", false},
		{"Basic abc123", "", false},
		{"abc123", "", false},
	}
	for _, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || token != tc.token) {
			t.Fatalf("header %q: got token=%q err=%v", tc.header, token, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("header %q: expected error", tc.header)
		}
	}
}

func TestExpiredTokenIsUnauthorized(t *testing.T) {
	current := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	store := auth.NewMemoryStore()
	codec, err := auth.NewTokenCodec("test-secret",
		auth.WithAccessTTL(15*time.Minute),
		auth.WithTokenClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	svc, err := auth.NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	api := New(svc, ReadyProbe{}, "test", false)
	h := api.Handler()

	if _, err := svc.Signup(context.Background(), "zoe@example.com", "Passw0rd", "Zoe", auth.ClientInfo{}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	bundle, _, err := svc.Signin(context.Background(), "zoe@example.com", "Passw0rd", auth.ClientInfo{})
	if err != nil {
		t.Fatalf("Signin: %v", err)
	}

	current = current.Add(16 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d: %s", rec.Code, rec.Body)
	}
}
