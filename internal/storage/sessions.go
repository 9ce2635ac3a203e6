package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/printory/qrledger/internal/core/domain"
)

// ErrSessionNotFound is returned when an upload session id does not exist.
var ErrSessionNotFound = errors.New("upload session not found")

// CreateUploadSession records one ingestion call's totals and returns the
// generated session id, which lot and identifier rows reference.
func (db *DB) CreateUploadSession(ctx context.Context, tokenID int64, total, valid, duplicates int) (int64, error) {
	var id int64

	err := db.Pool.QueryRow(ctx,
		`INSERT INTO upload_sessions (token_id, total_records, valid_records, duplicate_records)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		tokenID, total, valid, duplicates).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create upload session: %w", err)
	}

	return id, nil
}

// GetUploadSession returns one session by id.
func (db *DB) GetUploadSession(ctx context.Context, id int64) (*domain.UploadSession, error) {
	var s domain.UploadSession

	err := db.Pool.QueryRow(ctx,
		`SELECT id, COALESCE(token_id, 0), uploaded_at, total_records, valid_records, duplicate_records
		 FROM upload_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.TokenID, &s.UploadedAt, &s.TotalRecords, &s.ValidRecords, &s.DuplicateRecords)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}

		return nil, fmt.Errorf("get upload session %d: %w", id, err)
	}

	return &s, nil
}

// Stats aggregates service-wide counters for the admin dashboard.
type Stats struct {
	TotalLots        int64 `json:"total_lots"`
	TotalRecords     int64 `json:"total_records"`
	TotalIdentifiers int64 `json:"total_identifiers"`
	TotalUploads     int64 `json:"total_uploads"`
	ActiveTokens     int64 `json:"active_tokens"`
}

// GetStats returns aggregate counts across lots, identifiers, sessions and
// tokens.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats

	err := db.Pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM lots),
			(SELECT COALESCE(SUM(record_count), 0) FROM lots),
			(SELECT COUNT(*) FROM upload_sessions),
			(SELECT COUNT(*) FROM api_tokens WHERE is_active)`).
		Scan(&s.TotalLots, &s.TotalRecords, &s.TotalUploads, &s.ActiveTokens)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	identifiers, err := db.CountIdentifiers(ctx)
	if err != nil {
		return nil, err
	}

	s.TotalIdentifiers = identifiers

	return &s, nil
}
