package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/internal/logger"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine errors to a status and a stable code. Order matters:
// a reuse whose cascade failed also carries ErrPersistence, and
// ErrLoginTxNotFound wraps ErrInvalidToken.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request", "malformed request"
	case errors.Is(err, authkit.ErrReuseDetected):
		return http.StatusUnauthorized, "reuse_detected", "refresh token reuse detected"
	case errors.Is(err, authkit.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, authkit.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case errors.Is(err, authkit.ErrLoginTxNotFound):
		return http.StatusUnauthorized, "invalid_login_tx", "login transaction not found"
	case errors.Is(err, authkit.ErrInvalidToken), errors.Is(err, authkit.ErrInvalidPayload):
		return http.StatusUnauthorized, "invalid_token", "invalid token"
	case errors.Is(err, authkit.ErrInvalidCode):
		return http.StatusUnauthorized, "invalid_code", "invalid code"
	case errors.Is(err, authkit.ErrInvalidRecoveryCode):
		return http.StatusUnauthorized, "invalid_recovery_code", "invalid recovery code"
	case errors.Is(err, authkit.ErrNoPendingSetup):
		return http.StatusConflict, "no_pending_setup", "no pending mfa setup"
	case errors.Is(err, authkit.ErrNoActiveFactor):
		return http.StatusConflict, "no_active_factor", "no active mfa factor"
	case errors.Is(err, authkit.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, authkit.ErrFactorNotFound):
		return http.StatusNotFound, "factor_not_found", "mfa factor not found"
	case errors.Is(err, authkit.ErrUnsupportedFactor):
		return http.StatusBadRequest, "unsupported_factor", "unsupported mfa factor"
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

// writeError never echoes err itself; server-side failures are logged.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed", logger.Path(r.URL.Path), logger.Err(err))
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
