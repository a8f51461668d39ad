package httpapi

import (
	"net/http"

	merco "github.com/SametHaymana/merco-api"
)

type otpRequest struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Code  string `json:"code,omitempty"`
}

// target picks the channel from whichever identifier is present; phone wins.
func (req otpRequest) target() (merco.Channel, string) {
	if req.Phone != "" {
		return merco.ChannelSMS, req.Phone
	}
	return merco.ChannelEmail, req.Email
}

func (h *handler) sendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	channel, identifier := req.target()
	if err := h.engine.SendOTP(r.Context(), tenant(r), channel, identifier); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	_, identifier := req.target()
	res, err := h.engine.VerifyOTP(r.Context(), tenant(r), identifier, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type magicLinkRequest struct {
	Email string `json:"email,omitempty"`
	Token string `json:"token,omitempty"`
}

func (h *handler) sendMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.SendMagicLink(r.Context(), tenant(r), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handler) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.VerifyMagicLink(r.Context(), tenant(r), req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) verifyMagicLinkQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.engine.VerifyMagicLink(r.Context(), q.Get("tenant_id"), q.Get("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
