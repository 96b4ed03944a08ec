package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/middleware"
	"github.com/go-chi/chi/v5"
)

type totpSetupRequest struct {
	ServiceName string `json:"serviceName"`
}

type totpActivateRequest struct {
	Code string `json:"code"`
}

type confirmRequest struct {
	LoginTx  string `json:"loginTx"`
	Code     string `json:"code"`
	Audience string `json:"aud"`
	Scope    string `json:"scope"`
}

type recoveryCodesResponse struct {
	Codes  []string `json:"codes"`
	Masked []string `json:"masked"`
}

type factorView struct {
	ID        string               `json:"id"`
	Type      authkit.FactorType   `json:"type"`
	Status    authkit.FactorStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// bearer returns the payload Guard verified. Any user id in the request is
// ignored in favour of it.
func bearer(r *http.Request) (*authkit.Payload, error) {
	p, ok := middleware.PayloadFromContext(r.Context())
	if !ok || p.ID == "" {
		return nil, authkit.ErrInvalidToken
	}
	return p, nil
}

func (h *handler) totpSetup(w http.ResponseWriter, r *http.Request) {
	p, err := bearer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req totpSetupRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	url, err := h.engine.SetupTOTP(r.Context(), p.ID, p.Username, req.ServiceName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"otpauthUrl": url})
}

func (h *handler) totpActivate(w http.ResponseWriter, r *http.Request) {
	p, err := bearer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req totpActivateRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.ActivateTOTP(r.Context(), p.ID, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// confirmWith completes a login transaction with the given factor.
func (h *handler) confirmWith(factor authkit.FactorType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := readJSON(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		sess, err := h.engine.ConfirmLoginMFA(r.Context(), req.LoginTx, factor, req.Code,
			issueOptions(req.Audience, req.Scope)...)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (h *handler) recoveryGenerate(w http.ResponseWriter, r *http.Request) {
	p, err := bearer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	set, err := h.engine.GenerateRecoveryCodes(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, recoveryCodesResponse{Codes: set.Codes, Masked: set.Masked})
}

func (h *handler) listFactors(w http.ResponseWriter, r *http.Request) {
	p, err := bearer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	factors, err := h.engine.ListFactors(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]factorView, 0, len(factors))
	for _, f := range factors {
		out = append(out, factorView{
			ID:        f.ID,
			Type:      f.Type,
			Status:    f.Status,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"factors": out})
}

func (h *handler) revokeFactor(w http.ResponseWriter, r *http.Request) {
	p, err := bearer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.RevokeFactor(r.Context(), p.ID, chi.URLParam(r, "factorID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
