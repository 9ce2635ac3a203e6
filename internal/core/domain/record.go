// Package domain defines the core entities of the QR lot ingestion service:
// incoming and accepted records, duplicate reports, upload sessions, lots and
// stored identifiers.
package domain

import (
	"fmt"
	"time"
)

// Field length limits, matching the identifier store's column widths.
const (
	MaxQRIDLen      = 100
	MaxLotNumberLen = 50
)

// Duplicate rejection reasons.
const (
	ReasonDuplicateInUpload   = "duplicate_in_upload"
	ReasonDuplicateInDatabase = "duplicate_in_database"
)

// IncomingRecord is one uploaded QR payload before any duplicate checking.
// It exists only for the duration of a single ingestion call.
type IncomingRecord struct {
	QRID        string `json:"qr_id"`
	QRText      string `json:"qr_text"`
	LotNumber   string `json:"lot_number"`
	PrintFormat string `json:"print_format"`
}

// Validate checks the per-record constraints enforced before a record may
// enter the pipeline. Malformed records are a validation failure, never a
// duplicate.
func (r IncomingRecord) Validate() error {
	if r.QRID == "" {
		return fmt.Errorf("record: %w", ErrEmptyQRID)
	}

	if len(r.QRID) > MaxQRIDLen {
		return fmt.Errorf("record %q: %w", r.QRID, ErrQRIDTooLong)
	}

	if r.QRText == "" {
		return fmt.Errorf("record %q: %w", r.QRID, ErrEmptyQRText)
	}

	if r.LotNumber == "" {
		return fmt.Errorf("record %q: %w", r.QRID, ErrEmptyLotNumber)
	}

	if len(r.LotNumber) > MaxLotNumberLen {
		return fmt.Errorf("record %q: %w", r.QRID, ErrLotNumberTooLong)
	}

	if r.PrintFormat == "" {
		return fmt.Errorf("record %q: %w", r.QRID, ErrEmptyPrintFormat)
	}

	return nil
}

// AcceptedRecord is an IncomingRecord that has passed both duplicate checks
// and carries the fingerprint of its payload text. Only accepted records
// reach the export writer and the identifier store.
type AcceptedRecord struct {
	IncomingRecord
	Fingerprint string
}

// DuplicateRecord reports one rejected record. Reporting-only, never
// persisted.
type DuplicateRecord struct {
	QRID      string `json:"qr_id"`
	LotNumber string `json:"lot_number"`
	Reason    string `json:"reason"`
}

// StoredIdentifier is the durable trace of one accepted record, the ground
// truth future batches are checked against. Append-only: the pipeline never
// updates or deletes rows.
type StoredIdentifier struct {
	ID              int64
	QRID            string
	QRTextHash      string
	LotNumber       string
	UploadSessionID int64
	CreatedAt       time.Time
}

// UploadSession tracks one ingestion call's totals.
type UploadSession struct {
	ID               int64     `json:"id"`
	TokenID          int64     `json:"token_id"`
	UploadedAt       time.Time `json:"uploaded_at"`
	TotalRecords     int       `json:"total_records"`
	ValidRecords     int       `json:"valid_records"`
	DuplicateRecords int       `json:"duplicate_records"`
}

// Lot is one batch's partition of accepted records sharing a lot number,
// exported as exactly one file. Lot numbers are not unique across batches;
// two batches with the same lot number produce two Lot rows and two files.
type Lot struct {
	ID              int64     `json:"id"`
	LotNumber       string    `json:"lot_number"`
	RecordCount     int       `json:"record_count"`
	FilePath        string    `json:"-"`
	FileName        string    `json:"file_name"`
	UploadSessionID int64     `json:"upload_session_id"`
	UploadedAt      time.Time `json:"uploaded_at"`
}

// BatchSummary is the result of one ingestion call. Sample holds at most
// MaxDuplicateSample entries; Duplicates is always the true total.
type BatchSummary struct {
	SessionID   int64             `json:"session_id"`
	Total       int               `json:"total_records"`
	Valid       int               `json:"valid_records"`
	Duplicates  int               `json:"duplicate_records"`
	LotsCreated []string          `json:"lots_created"`
	Sample      []DuplicateRecord `json:"duplicates,omitempty"`
}

// MaxDuplicateSample caps the duplicate sample returned to callers. A
// reporting limit only; it never affects the duplicate count.
const MaxDuplicateSample = 100
