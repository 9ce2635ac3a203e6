package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	db "github.com/printory/qrledger/internal/storage"
)

const (
	errMsgTokenNotFound = "Token not found."
	errMsgBadTokenID    = "Token id must be an integer."
	maxTokenNameLen     = 100
)

type createTokenRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgInvalidBody)
		return
	}

	if req.Name == "" || len(req.Name) > maxTokenNameLen {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, "name must be 1-100 characters")
		return
	}

	token, err := s.store.CreateToken(r.Context(), req.Name)
	if err != nil {
		s.logger.Error().Err(err).Msg("create token")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to create token.")

		return
	}

	s.writeJSON(w, http.StatusCreated, token)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.store.ListTokens(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list tokens")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to list tokens.")

		return
	}

	s.writeJSON(w, http.StatusOK, tokens)
}

type updateTokenRequest struct {
	IsActive bool `json:"is_active"`
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDFromPath(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgBadTokenID)
		return
	}

	var req updateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgInvalidBody)
		return
	}

	if err := s.store.SetTokenActive(r.Context(), id, req.IsActive); err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			s.writeError(w, http.StatusNotFound, errTitleNotFound, errMsgTokenNotFound)
			return
		}

		s.logger.Error().Err(err).Int64("token_id", id).Msg("update token")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to update token.")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenIDFromPath(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgBadTokenID)
		return
	}

	if err := s.store.DeleteToken(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			s.writeError(w, http.StatusNotFound, errTitleNotFound, errMsgTokenNotFound)
			return
		}

		s.logger.Error().Err(err).Int64("token_id", id).Msg("delete token")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to delete token.")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, "Session id must be an integer.")
		return
	}

	session, err := s.store.GetUploadSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, errTitleNotFound, "Upload session not found.")
			return
		}

		s.logger.Error().Err(err).Int64("session_id", id).Msg("get upload session")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to load session.")

		return
	}

	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("get stats")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to load stats.")

		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func tokenIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}
