package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/authkit"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Audience string `json:"aud"`
	Scope    string `json:"scope"`
}

type mfaChallengeResponse struct {
	MFARequired bool                 `json:"mfaRequired"`
	LoginTx     string               `json:"loginTx"`
	Factors     []authkit.FactorType `json:"factors"`
}

type refreshRequest struct {
	UserID       string `json:"userId"`
	RefreshToken string `json:"refreshToken"`
	Audience     string `json:"aud"`
	Scope        string `json:"scope"`
}

type revokeRequest struct {
	JTI string `json:"jti"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

type payloadRequest struct {
	AccessToken string `json:"accessToken"`
}

func issueOptions(aud, scope string) []authkit.IssueOption {
	return []authkit.IssueOption{authkit.WithAudience(aud), authkit.WithScope(scope)}
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.engine.Login(r.Context(), req.Username, req.Password, issueOptions(req.Audience, req.Scope)...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.MFARequired {
		writeJSON(w, http.StatusOK, mfaChallengeResponse{
			MFARequired: true,
			LoginTx:     res.LoginTx,
			Factors:     res.Factors,
		})
		return
	}
	writeJSON(w, http.StatusOK, res.Session)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || req.RefreshToken == "" {
		h.writeError(w, r, errBadRequest)
		return
	}

	sess, err := h.engine.Rotate(r.Context(), req.UserID, req.RefreshToken, issueOptions(req.Audience, req.Scope)...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.RevokeByJTI(r.Context(), req.JTI); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) revokeAll(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.RevokeByUserID(r.Context(), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getPayload(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if err := readJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.engine.ParsePayload(r.Context(), req.AccessToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
