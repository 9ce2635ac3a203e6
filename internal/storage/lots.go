package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/printory/qrledger/internal/core/domain"
)

// ErrLotNotFound is returned when a lot id does not exist.
var ErrLotNotFound = errors.New("lot not found")

// LotFilter narrows and pages lot listings. Zero values mean "no filter".
type LotFilter struct {
	LotNumber string
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}

// CreateLot records one exported lot's metadata and returns the generated id.
// Called only after the lot's export file has been durably written; a failed
// export must never gain a lot row.
func (db *DB) CreateLot(ctx context.Context, lot *domain.Lot) (int64, error) {
	var id int64

	err := db.Pool.QueryRow(ctx,
		`INSERT INTO lots (lot_number, record_count, file_path, file_name, upload_session_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		lot.LotNumber, lot.RecordCount, lot.FilePath, lot.FileName, lot.UploadSessionID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create lot %q: %w", lot.LotNumber, err)
	}

	return id, nil
}

// GetLot returns one lot by id.
func (db *DB) GetLot(ctx context.Context, id int64) (*domain.Lot, error) {
	var lot domain.Lot

	err := db.Pool.QueryRow(ctx,
		`SELECT id, lot_number, record_count, file_path, file_name, upload_session_id, uploaded_at
		 FROM lots WHERE id = $1`, id).
		Scan(&lot.ID, &lot.LotNumber, &lot.RecordCount, &lot.FilePath, &lot.FileName,
			&lot.UploadSessionID, &lot.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLotNotFound
		}

		return nil, fmt.Errorf("get lot %d: %w", id, err)
	}

	return &lot, nil
}

// ListLots returns one page of lots matching the filter, newest first,
// together with the total matching count.
func (db *DB) ListLots(ctx context.Context, filter LotFilter) ([]domain.Lot, int64, error) {
	where, args := buildLotFilter(filter)

	var total int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM lots`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count lots: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLotPageLimit
	}

	if limit > MaxLotPageLimit {
		limit = MaxLotPageLimit
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}

	offset := (page - 1) * limit

	query := fmt.Sprintf(
		`SELECT id, lot_number, record_count, file_path, file_name, upload_session_id, uploaded_at
		 FROM lots%s
		 ORDER BY uploaded_at DESC, id DESC
		 LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := db.Pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var lots []domain.Lot

	for rows.Next() {
		var lot domain.Lot
		if err := rows.Scan(&lot.ID, &lot.LotNumber, &lot.RecordCount, &lot.FilePath,
			&lot.FileName, &lot.UploadSessionID, &lot.UploadedAt); err != nil {
			return nil, 0, fmt.Errorf("scan lot row: %w", err)
		}

		lots = append(lots, lot)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read lot rows: %w", err)
	}

	return lots, total, nil
}

// GetLotsByIDs returns the lots for the given ids, preserving no particular
// order. Missing ids are silently absent from the result.
func (db *DB) GetLotsByIDs(ctx context.Context, ids []int64) ([]domain.Lot, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, lot_number, record_count, file_path, file_name, upload_session_id, uploaded_at
		 FROM lots WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get lots by ids: %w", err)
	}
	defer rows.Close()

	var lots []domain.Lot

	for rows.Next() {
		var lot domain.Lot
		if err := rows.Scan(&lot.ID, &lot.LotNumber, &lot.RecordCount, &lot.FilePath,
			&lot.FileName, &lot.UploadSessionID, &lot.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan lot row: %w", err)
		}

		lots = append(lots, lot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read lot rows: %w", err)
	}

	return lots, nil
}

func buildLotFilter(filter LotFilter) (string, []interface{}) {
	var conds []string

	var args []interface{}

	if filter.LotNumber != "" {
		args = append(args, filter.LotNumber)
		conds = append(conds, fmt.Sprintf("lot_number = $%d", len(args)))
	}

	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("uploaded_at >= $%d", len(args)))
	}

	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("uploaded_at <= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}
