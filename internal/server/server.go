// Package server exposes the HTTP API: merchant upload, lot listing and
// download, and admin token management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/printory/qrledger/internal/core/domain"
	"github.com/printory/qrledger/internal/platform/config"
	db "github.com/printory/qrledger/internal/storage"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second

	headerAPIToken  = "X-API-Token"
	queryParamToken = "token"

	// Error title constants.
	errTitleNotFound     = "Not Found"
	errTitleBadRequest   = "Bad Request"
	errTitleUnauthorized = "Unauthorized"
	errTitleTooMany      = "Too Many Requests"
	errTitleError        = "Error"
)

// Store is everything the API handlers need from the database.
// *db.DB satisfies it.
type Store interface {
	GetActiveToken(ctx context.Context, token string) (*db.APIToken, error)
	TouchToken(ctx context.Context, id int64) error
	CreateToken(ctx context.Context, name string) (*db.APIToken, error)
	ListTokens(ctx context.Context) ([]db.APIToken, error)
	SetTokenActive(ctx context.Context, id int64, active bool) error
	DeleteToken(ctx context.Context, id int64) error
	GetLot(ctx context.Context, id int64) (*domain.Lot, error)
	ListLots(ctx context.Context, filter db.LotFilter) ([]domain.Lot, int64, error)
	GetLotsByIDs(ctx context.Context, ids []int64) ([]domain.Lot, error)
	GetUploadSession(ctx context.Context, id int64) (*domain.UploadSession, error)
	GetStats(ctx context.Context) (*db.Stats, error)
}

// Ingestor runs one upload batch through the deduplicating pipeline.
type Ingestor interface {
	Process(ctx context.Context, tokenID int64, records []domain.IncomingRecord) (*domain.BatchSummary, error)
}

// Server serves the public and admin HTTP API.
type Server struct {
	cfg      *config.Config
	store    Store
	pipeline Ingestor
	limiters *tokenLimiters
	logger   *zerolog.Logger
}

func New(cfg *config.Config, store Store, pipeline Ingestor, logger *zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		limiters: newTokenLimiters(cfg.UploadRateRPS, cfg.UploadRateBurst),
		logger:   logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload", s.handleUpload)

	mux.HandleFunc("GET /lots", s.adminOnly(s.handleListLots))
	mux.HandleFunc("GET /lots/{id}", s.adminOnly(s.handleGetLot))
	mux.HandleFunc("GET /lots/{id}/download", s.adminOnly(s.handleDownloadLot))
	mux.HandleFunc("POST /lots/download", s.adminOnly(s.handleDownloadMultiple))

	mux.HandleFunc("POST /tokens", s.adminOnly(s.handleCreateToken))
	mux.HandleFunc("GET /tokens", s.adminOnly(s.handleListTokens))
	mux.HandleFunc("PATCH /tokens/{id}", s.adminOnly(s.handleUpdateToken))
	mux.HandleFunc("DELETE /tokens/{id}", s.adminOnly(s.handleDeleteToken))

	mux.HandleFunc("GET /sessions/{id}", s.adminOnly(s.handleGetSession))

	mux.HandleFunc("GET /stats", s.adminOnly(s.handleStats))

	return mux
}

// Start serves the API until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info().Int("port", s.cfg.APIPort).Msg("api server started")

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}

		return ctx.Err()
	}
}
