package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/printory/qrledger/internal/core/domain"
	"github.com/printory/qrledger/internal/ingest"
)

type uploadRequest struct {
	Data []domain.IncomingRecord `json:"data"`
}

type uploadResponse struct {
	Message string `json:"message"`
	domain.BatchSummary
}

const (
	errMsgEmptyBatch  = "Upload must contain at least one record."
	errMsgInvalidBody = "Request body is not valid JSON."
	msgUploadOK       = "Data uploaded successfully"
)

// handleUpload is the merchant ingestion entry point. Token auth, rate
// limiting and request validation happen here; everything after is the
// pipeline's linear pass.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	token, err := s.authenticateToken(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, errTitleUnauthorized, errMsgTokenRequired)
		return
	}

	if !s.limiters.allow(token.ID) {
		s.writeError(w, http.StatusTooManyRequests, errTitleTooMany, "Upload rate limit exceeded.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgInvalidBody)
		return
	}

	if len(req.Data) == 0 {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgEmptyBatch)
		return
	}

	for _, rec := range req.Data {
		if err := rec.Validate(); err != nil {
			s.writeError(w, http.StatusUnprocessableEntity, errTitleBadRequest, err.Error())
			return
		}
	}

	summary, err := s.pipeline.Process(r.Context(), token.ID, req.Data)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	if err := s.store.TouchToken(r.Context(), token.ID); err != nil {
		s.logger.Error().Err(err).Int64("token_id", token.ID).Msg("touch token")
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{Message: msgUploadOK, BatchSummary: *summary})
}

// respondPipelineError maps pipeline failures to API responses. An export
// failure is reported with the lots committed before it; they are not rolled
// back.
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, ingest.ErrAllDuplicates) {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, "All records are duplicates. No data to upload.")
		return
	}

	var exportErr *ingest.ExportError
	if errors.As(err, &exportErr) {
		s.logger.Error().Err(err).Str("lot_number", exportErr.LotNumber).Msg("lot export failed")
		s.writeJSON(w, http.StatusInternalServerError, struct {
			Error        string   `json:"error"`
			LotNumber    string   `json:"lot_number"`
			LotsExported []string `json:"lots_exported"`
		}{
			Error:        exportErr.Error(),
			LotNumber:    exportErr.LotNumber,
			LotsExported: exportErr.LotsExported,
		})

		return
	}

	s.logger.Error().Err(err).Msg("upload pipeline failed")
	s.writeError(w, http.StatusInternalServerError, errTitleError, "Upload failed.")
}
