package httpapi

import (
	"net/http"
)

type passwordResetRequest struct {
	Email    string `json:"email,omitempty"`
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// requestPasswordReset answers 202 whether or not the email is registered.
func (h *handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), tenant(r), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), tenant(r), req.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id := identity(r)
	if err := h.engine.ChangePassword(r.Context(), id.TenantID, id.UserID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (h *handler) enrollMFA(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	enrollment, err := h.engine.EnrollTOTP(r.Context(), id.TenantID, id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment)
}

func (h *handler) confirmMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id := identity(r)
	codes, err := h.engine.ConfirmTOTP(r.Context(), id.TenantID, id.UserID, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}

func (h *handler) disableMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCodeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	id := identity(r)
	if err := h.engine.DisableTOTP(r.Context(), id.TenantID, id.UserID, req.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
