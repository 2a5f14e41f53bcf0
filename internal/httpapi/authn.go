package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"crewhub.io/internal/auth"
	"crewhub.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/signup",
	"/v1/auth/signin",
	"/v1/auth/refresh",
	"/v1/auth/signout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates every non-public request: extract the access token
// (cookie preferred, bearer header fallback), verify it, run the hijack
// check, and attach the principal to the context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := cookieValue(r, accessCookieName)
		if token == "" {
			var err error
			token, err = extractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				unauthorized(w, r, "authentication required")
				return
			}
		}

		principal, err := a.auth.VerifyAccess(token)
		if err != nil {
			unauthorized(w, r, "invalid or expired token")
			return
		}

		if !a.checkHijack(w, r, principal) {
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// checkHijack compares the stored session User-Agent against the request's.
// A missing session or a session without a recorded User-Agent means there is
// nothing to compare against and is not a failure. Writes the response and
// returns false on mismatch.
func (a *API) checkHijack(w http.ResponseWriter, r *http.Request, principal auth.Principal) bool {
	refreshToken := cookieValue(r, refreshCookieName)
	if refreshToken == "" {
		return true
	}
	session, err := a.auth.SessionForRefresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return true
		}
		// Registry failures are not swallowed; skipping the check would
		// defeat its purpose.
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return false
	}
	if session.UserAgent == "" || session.UserAgent == r.UserAgent() {
		return true
	}

	obs.IncHijackDetected()
	obs.Logger().Warn().
		Str("user_id", principal.UserID).
		Str("session_id", session.ID).
		Str("reason", "user_agent_mismatch").
		Msg("session hijacking detected")
	a.auth.Audit(r.Context(), &auth.AuditEntry{
		UserID:    principal.UserID,
		Action:    "auth.hijack_detected",
		Reason:    "user_agent_mismatch",
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	writeError(w, r, http.StatusForbidden, "forbidden")
	return false
}

// requirePermission gates a handler on a permission key. The admin bypass is
// inside Principal.HasPermission, not here.
func (a *API) requirePermission(next http.HandlerFunc, perm string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		if !principal.HasPermission(perm) {
			writeError(w, r, http.StatusForbidden, fmt.Sprintf("missing permission %s", perm))
			return
		}
		next(w, r)
	}
}

// requireRoleLevel gates a handler on a minimum role level.
func (a *API) requireRoleLevel(next http.HandlerFunc, level int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		if !principal.HasMinimumRoleLevel(level) {
			writeError(w, r, http.StatusForbidden, "insufficient role level")
			return
		}
		next(w, r)
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
