package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCSRFHandler(t *testing.T) http.Handler {
	t.Helper()
	api, _, _ := newTestAPI(t)
	return api.csrfProtect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func csrfRequest(method, path string, withAccessCookie bool, cookieToken, headerToken string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if withAccessCookie {
		req.AddCookie(&http.Cookie{Name: accessCookieName, Value: "some-access-token"})
	}
	if cookieToken != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookieToken})
	}
	if headerToken != "" {
		req.Header.Set(csrfHeader, headerToken)
	}
	return req
}

func TestCSRFAllowsMatchingTokens(t *testing.T) {
	h := newCSRFHandler(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, csrfRequest(http.MethodPost, "/v1/auth/signout-all", true, "tok-1", "tok-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCSRFRejectsMissingOrMismatchedTokens(t *testing.T) {
	h := newCSRFHandler(t)
	cases := []struct {
		name   string
		cookie string
		header string
	}{
		{"no tokens", "", ""},
		{"cookie only", "tok-1", ""},
		{"header only", "", "tok-1"},
		{"mismatch", "tok-1", "tok-2"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, csrfRequest(http.MethodPost, "/v1/auth/signout-all", true, tc.cookie, tc.header))
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", tc.name, rr.Code)
		}
	}
}

func TestCSRFSkipsReads(t *testing.T) {
	h := newCSRFHandler(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, csrfRequest(http.MethodGet, "/v1/auth/me", true, "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET should bypass the check, got %d", rr.Code)
	}
}

func TestCSRFSkipsBearerClients(t *testing.T) {
	// No access cookie means no ambient credential for a cross-site form to
	// ride on, so the check does not apply.
	h := newCSRFHandler(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, csrfRequest(http.MethodPost, "/v1/auth/signout-all", false, "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("bearer client should bypass the check, got %d", rr.Code)
	}
}

func TestCSRFSkipsTokenIssuanceEndpoints(t *testing.T) {
	h := newCSRFHandler(t)
	for _, path := range []string{"/v1/auth/signin", "/v1/auth/signup", "/v1/auth/refresh"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, csrfRequest(http.MethodPost, path, true, "", ""))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s should bypass the check, got %d", path, rr.Code)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("abc", "abc") {
		t.Fatalf("equal strings compared unequal")
	}
	if constantTimeEqual("abc", "abd") || constantTimeEqual("abc", "abcd") || constantTimeEqual("", "a") {
		t.Fatalf("unequal strings compared equal")
	}
}
