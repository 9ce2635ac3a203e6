package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	db "github.com/printory/qrledger/internal/storage"
)

const (
	headerAdminToken = "X-Admin-Token"

	errMsgAdminRequired = "Valid admin token required."
	errMsgTokenRequired = "Valid API token required."
)

// adminOnly guards admin endpoints with the static admin token from config.
// Digests are compared, not the raw strings, so the comparison is constant
// time regardless of token length.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	expected := sha256.Sum256([]byte(s.cfg.AdminToken))

	return func(w http.ResponseWriter, r *http.Request) {
		got := sha256.Sum256([]byte(r.Header.Get(headerAdminToken)))

		if subtle.ConstantTimeCompare(expected[:], got[:]) != 1 {
			s.writeError(w, http.StatusUnauthorized, errTitleUnauthorized, errMsgAdminRequired)
			return
		}

		next(w, r)
	}
}

// authenticateToken resolves the merchant API token from the X-API-Token
// header or the token query parameter.
func (s *Server) authenticateToken(r *http.Request) (*db.APIToken, error) {
	value := r.Header.Get(headerAPIToken)
	if value == "" {
		value = r.URL.Query().Get(queryParamToken)
	}

	if value == "" {
		return nil, db.ErrTokenNotFound
	}

	return s.store.GetActiveToken(r.Context(), value)
}
