package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	merco "github.com/SametHaymana/merco-api"
)

/*
====================================
API KEYS
====================================
*/

type createAPIKeyRequest struct {
	Name string `json:"name"`
	// TTLSeconds of 0 creates a key that never expires.
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

func (h *handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.TTLSeconds < 0 {
		h.fail(w, r, fmt.Errorf("%w: ttl_seconds must be >= 0", merco.ErrInvalidInput))
		return
	}
	key, err := h.engine.CreateAPIKey(r.Context(), tenant(r), req.Name, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

func (h *handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.engine.ListAPIKeys(r.Context(), tenant(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if keys == nil {
		keys = []merco.APIKeyInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys, "count": len(keys)})
}

func (h *handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RevokeAPIKey(r.Context(), tenant(r), chi.URLParam(r, "keyID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
ROLES
====================================
*/

func (h *handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in merco.RoleInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.engine.CreateRole(r.Context(), tenant(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

func (h *handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.engine.ListRoles(r.Context(), tenant(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []merco.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles, "count": len(roles)})
}

func (h *handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var in merco.RoleInput
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.engine.UpdateRole(r.Context(), tenant(r), chi.URLParam(r, "roleID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (h *handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRole(r.Context(), tenant(r), chi.URLParam(r, "roleID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/*
====================================
USERS
====================================
*/

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.engine.GetUser(r.Context(), tenant(r), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) banUser(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

func (h *handler) unbanUser(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	if err := h.engine.SetBanned(r.Context(), tenant(r), chi.URLParam(r, "userID"), banned); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.engine.EffectivePermissions(r.Context(), tenant(r), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"permissions": perms})
}

type authorizeRequest struct {
	Permission string `json:"permission"`
}

// authorizeUser evaluates live role assignments, not token claims.
func (h *handler) authorizeUser(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.CheckPermission(r.Context(), tenant(r), chi.URLParam(r, "userID"), req.Permission); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (h *handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.AssignRole(r.Context(), tenant(r), chi.URLParam(r, "userID"), req.RoleID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.UnassignRole(r.Context(), tenant(r), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) signOutUser(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.SignOutAll(r.Context(), tenant(r), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}
