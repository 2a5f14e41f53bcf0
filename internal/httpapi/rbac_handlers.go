package httpapi

import (
	"net/http"
	"strings"

	"crewhub.io/internal/audit"
)

type assignRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles, err := a.auth.ListRoles(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// handleUserResource routes /v1/users/{id}/roles.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, rest, _ := strings.Cut(path, "/")
	if userID == "" || rest != "roles" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.requirePermission(func(w http.ResponseWriter, r *http.Request) {
		a.assignRole(w, r, userID)
	}, "role:update:all")(w, r)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request, userID string) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Role = strings.TrimSpace(req.Role)
	if req.Role == "" {
		writeError(w, r, http.StatusBadRequest, "role is required")
		return
	}
	if err := a.auth.AssignRole(r.Context(), userID, req.Role); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.assigned", map[string]any{
		"target_user_id": userID,
		"role":           req.Role,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": userID,
		"role":    req.Role,
	})
}
