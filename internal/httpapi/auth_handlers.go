package httpapi

import (
	"net/http"
	"time"

	"crewhub.io/internal/auth"
	"crewhub.io/internal/obs"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
	csrfCookieName    = "csrfToken"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type principalResponse struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type sessionResponse struct {
	User            principalResponse `json:"user"`
	AccessExpiresAt time.Time         `json:"access_expires_at"`
	CSRFToken       string            `json:"csrf_token"`
}

func principalSummary(p auth.Principal) principalResponse {
	return principalResponse{
		UserID:      p.UserID,
		Email:       p.Email,
		Roles:       p.RoleNames,
		Permissions: p.PermissionKeys(),
	}
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.Signup(r.Context(), req.Email, req.Password, req.Name, clientInfo(r))
	if err != nil {
		if _, ok := auth.IsRateLimited(err); ok {
			obs.IncRateLimited("signup")
		}
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	bundle, principal, err := a.auth.Signin(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		if _, ok := auth.IsRateLimited(err); ok {
			obs.IncSignin("rate_limited")
			obs.IncRateLimited("login")
		} else {
			obs.IncSignin("unauthorized")
		}
		handleAuthError(w, r, err)
		return
	}
	obs.IncSignin("success")
	a.setAuthCookies(w, bundle)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:            principalSummary(principal),
		AccessExpiresAt: bundle.AccessExpiresAt,
		CSRFToken:       bundle.CSRFToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := cookieValue(r, refreshCookieName)
	if token == "" {
		// Fallback for non-cookie clients.
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		unauthorized(w, r, "refresh token required")
		return
	}
	bundle, principal, err := a.auth.Refresh(r.Context(), token, clientInfo(r))
	if err != nil {
		a.clearAuthCookies(w)
		handleAuthError(w, r, err)
		return
	}
	a.setAuthCookies(w, bundle)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:            principalSummary(principal),
		AccessExpiresAt: bundle.AccessExpiresAt,
		CSRFToken:       bundle.CSRFToken,
	})
}

// handleSignout always succeeds from the caller's point of view.
func (a *API) handleSignout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := cookieValue(r, refreshCookieName)
	if err := a.auth.Signout(r.Context(), token, clientInfo(r)); err != nil {
		obs.Logger().Warn().Err(err).Msg("signout failed")
	}
	a.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
}

func (a *API) handleSignoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	if err := a.auth.SignoutAll(r.Context(), principal.UserID, clientInfo(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "authentication required")
		return
	}
	resp := map[string]any{
		"user": principalSummary(principal),
	}
	// Expiry is informational only, so the unverified decode is fine here.
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		if claims := a.auth.Codec().DecodeUnsafe(token); claims != nil && claims.ExpiresAt != nil {
			resp["access_expires_at"] = claims.ExpiresAt.Time
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- cookies ---

func (a *API) setAuthCookies(w http.ResponseWriter, bundle auth.TokenBundle) {
	sameSite := http.SameSiteLaxMode
	if a.production {
		sameSite = http.SameSiteStrictMode
	}
	accessMaxAge := int(time.Until(bundle.AccessExpiresAt).Seconds())
	refreshMaxAge := int(time.Until(bundle.RefreshExpiresAt).Seconds())

	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    bundle.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.production,
		SameSite: sameSite,
		MaxAge:   accessMaxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    bundle.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.production,
		SameSite: sameSite,
		MaxAge:   refreshMaxAge,
	})
	// Readable by client script so it can be echoed back in a header.
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    bundle.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   a.production,
		SameSite: sameSite,
		MaxAge:   refreshMaxAge,
	})
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName, csrfCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: name != csrfCookieName,
			Secure:   a.production,
			MaxAge:   -1,
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}
