package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/araddon/dateparse"

	"github.com/printory/qrledger/internal/core/domain"
	db "github.com/printory/qrledger/internal/storage"
)

const (
	errMsgLotNotFound = "Lot not found."
	errMsgFileGone    = "Export file is no longer available on disk."
	errMsgBadLotID    = "Lot id must be an integer."
)

type lotsListResponse struct {
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Lots  []domain.Lot `json:"lots"`
}

func (s *Server) handleListLots(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLotFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, err.Error())
		return
	}

	lots, total, err := s.store.ListLots(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list lots")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to list lots.")

		return
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = db.DefaultLotPageLimit
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}

	s.writeJSON(w, http.StatusOK, lotsListResponse{Total: total, Page: page, Limit: limit, Lots: lots})
}

func (s *Server) handleGetLot(w http.ResponseWriter, r *http.Request) {
	lot, ok := s.lotFromPath(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, lot)
}

// handleDownloadLot streams the lot's export file. A lot whose file has been
// removed from disk is reported as gone, not as an empty download.
func (s *Server) handleDownloadLot(w http.ResponseWriter, r *http.Request) {
	lot, ok := s.lotFromPath(w, r)
	if !ok {
		return
	}

	if _, err := os.Stat(lot.FilePath); err != nil {
		s.writeError(w, http.StatusGone, errTitleNotFound, errMsgFileGone)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(lot.FileName))
	w.Header().Set(contentTypeHeader, "text/csv; charset=utf-8")
	http.ServeFile(w, r, lot.FilePath)
}

type downloadMultipleRequest struct {
	LotIDs []int64 `json:"lot_ids"`
}

type lotDownloadInfo struct {
	ID        int64  `json:"id"`
	LotNumber string `json:"lot_number"`
	FileName  string `json:"file_name"`
	Available bool   `json:"available"`
}

type downloadMultipleResponse struct {
	Message   string            `json:"message"`
	TotalLots int               `json:"total_lots"`
	Lots      []lotDownloadInfo `json:"lots"`
}

// handleDownloadMultiple returns a per-lot availability manifest for a set of
// lot ids; the client then fetches each file individually.
func (s *Server) handleDownloadMultiple(w http.ResponseWriter, r *http.Request) {
	var req downloadMultipleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgInvalidBody)
		return
	}

	if len(req.LotIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, "lot_ids must not be empty.")
		return
	}

	lots, err := s.store.GetLotsByIDs(r.Context(), req.LotIDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("get lots by ids")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to resolve lots.")

		return
	}

	infos := make([]lotDownloadInfo, 0, len(lots))

	for _, lot := range lots {
		_, statErr := os.Stat(lot.FilePath)
		infos = append(infos, lotDownloadInfo{
			ID:        lot.ID,
			LotNumber: lot.LotNumber,
			FileName:  lot.FileName,
			Available: statErr == nil,
		})
	}

	s.writeJSON(w, http.StatusOK, downloadMultipleResponse{
		Message:   "Lots resolved",
		TotalLots: len(infos),
		Lots:      infos,
	})
}

func (s *Server) lotFromPath(w http.ResponseWriter, r *http.Request) (*domain.Lot, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errTitleBadRequest, errMsgBadLotID)
		return nil, false
	}

	lot, err := s.store.GetLot(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrLotNotFound) {
			s.writeError(w, http.StatusNotFound, errTitleNotFound, errMsgLotNotFound)
			return nil, false
		}

		s.logger.Error().Err(err).Int64("lot_id", id).Msg("get lot")
		s.writeError(w, http.StatusInternalServerError, errTitleError, "Failed to load lot.")

		return nil, false
	}

	return lot, true
}

// parseLotFilter reads paging and filter query parameters. Dates accept any
// reasonable format (dateparse), not just RFC 3339.
func parseLotFilter(r *http.Request) (db.LotFilter, error) {
	var filter db.LotFilter

	q := r.URL.Query()
	filter.LotNumber = q.Get("lot_number")

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, errors.New("page must be a positive integer")
		}

		filter.Page = page
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, errors.New("limit must be a positive integer")
		}

		filter.Limit = limit
	}

	if v := q.Get("from"); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return filter, errors.New("from is not a recognizable date")
		}

		filter.From = t
	}

	if v := q.Get("to"); v != "" {
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return filter, errors.New("to is not a recognizable date")
		}

		filter.To = t
	}

	return filter, nil
}
