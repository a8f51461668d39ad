package httpapi

import (
	"encoding/json"
	"net/http"

	merco "github.com/SametHaymana/merco-api"
)

type credentialsRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	MFACode  string          `json:"mfa_code,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.SignUp(r.Context(), tenant(r), req.Email, req.Password, req.Metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.SignIn(r.Context(), merco.SignInRequest{
		TenantID: tenant(r),
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// A refresh token presented under another tenant's key loses its session.
	if res.User.TenantID != tenant(r) {
		if err := h.engine.SignOut(r.Context(), res.SessionID); err != nil {
			h.logger.WarnContext(r.Context(), "revoke cross-tenant session failed", "session_id", res.SessionID, "error", err)
		}
		h.fail(w, r, merco.ErrInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type verifyResponse struct {
	UserID      string   `json:"user_id"`
	TenantID    string   `json:"tenant_id"`
	SessionID   string   `json:"session_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"exp"`
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	roles, perms := id.Roles, id.Permissions
	if roles == nil {
		roles = []string{}
	}
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		UserID:      id.UserID,
		TenantID:    id.TenantID,
		SessionID:   id.SessionID,
		Roles:       roles,
		Permissions: perms,
		ExpiresAt:   id.ExpiresAt.Unix(),
	})
}

func (h *handler) currentSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.Session(r.Context(), identity(r).SessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handler) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SignOut(r.Context(), identity(r).SessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) signOutAll(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	n, err := h.engine.SignOutAll(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	u, err := h.engine.GetUser(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	perms, err := h.engine.EffectivePermissions(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"permissions": perms})
}
