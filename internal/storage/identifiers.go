package db

import (
	"context"
	"fmt"

	"github.com/printory/qrledger/internal/core/domain"
)

// ExistsAnyResult holds the identifiers from the store that matched a
// duplicate-check query. Sets, for O(1) classification of chunk records.
type ExistsAnyResult struct {
	QRIDs  map[string]struct{}
	Hashes map[string]struct{}
}

// ExistsAny reports which of the given qr_ids or payload hashes already exist
// in the identifier store. Only the matching identifiers are retrieved, never
// full rows. Both indexes (qr_id, qr_text_hash) keep this sublinear in store
// size.
func (db *DB) ExistsAny(ctx context.Context, qrIDs, hashes []string) (ExistsAnyResult, error) {
	result := ExistsAnyResult{
		QRIDs:  make(map[string]struct{}, len(qrIDs)),
		Hashes: make(map[string]struct{}, len(hashes)),
	}

	if len(qrIDs) == 0 && len(hashes) == 0 {
		return result, nil
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT qr_id, qr_text_hash
		 FROM qr_identifiers
		 WHERE qr_id = ANY($1) OR qr_text_hash = ANY($2)`,
		qrIDs, hashes)
	if err != nil {
		return result, fmt.Errorf("query existing identifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var qrID, hash string
		if err := rows.Scan(&qrID, &hash); err != nil {
			return result, fmt.Errorf("scan identifier row: %w", err)
		}

		result.QRIDs[qrID] = struct{}{}
		result.Hashes[hash] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("read identifier rows: %w", err)
	}

	return result, nil
}

// InsertIdentifiers persists one identifier row per accepted record, in
// chunks of chunkSize. Rows colliding with the unique indexes on qr_id or
// qr_text_hash are skipped via ON CONFLICT DO NOTHING: that is how a
// duplicate racing past the check phase in a concurrent batch is absorbed
// instead of failing the whole insert. Returns the number of rows actually
// inserted; the caller compares it with len(records) to detect such races.
//
// A crash partway through leaves a durable prefix of the batch recorded.
// That is accepted: re-uploading the same batch reports the prefix as
// duplicates and records the rest.
func (db *DB) InsertIdentifiers(ctx context.Context, records []domain.AcceptedRecord, sessionID int64, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("insert identifiers: chunk size must be positive, got %d", chunkSize)
	}

	var inserted int64

	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		chunk := records[start:end]

		n, err := db.insertIdentifierChunk(ctx, chunk, sessionID)
		if err != nil {
			return inserted, fmt.Errorf("insert identifiers chunk %d: %w", start/chunkSize, err)
		}

		inserted += n
	}

	return inserted, nil
}

func (db *DB) insertIdentifierChunk(ctx context.Context, chunk []domain.AcceptedRecord, sessionID int64) (int64, error) {
	qrIDs := make([]string, len(chunk))
	hashes := make([]string, len(chunk))
	lots := make([]string, len(chunk))

	for i, r := range chunk {
		qrIDs[i] = r.QRID
		hashes[i] = r.Fingerprint
		lots[i] = r.LotNumber
	}

	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO qr_identifiers (qr_id, qr_text_hash, lot_number, upload_session_id)
		 SELECT u.qr_id, u.qr_text_hash, u.lot_number, $4
		 FROM unnest($1::varchar[], $2::varchar[], $3::varchar[]) AS u(qr_id, qr_text_hash, lot_number)
		 ON CONFLICT DO NOTHING`,
		qrIDs, hashes, lots, sessionID)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// CountIdentifiers returns the total number of stored identifiers.
func (db *DB) CountIdentifiers(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM qr_identifiers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identifiers: %w", err)
	}

	return count, nil
}
