package ingest

import (
	"context"
	"fmt"

	"github.com/printory/qrledger/internal/core/domain"
	db "github.com/printory/qrledger/internal/storage"
)

// IdentifierStore is the slice of the persistent store the duplicate checker
// needs: an existence query over qr_ids and payload hashes.
type IdentifierStore interface {
	ExistsAny(ctx context.Context, qrIDs, hashes []string) (db.ExistsAnyResult, error)
}

// DedupeBatch removes records colliding with an earlier record in the same
// batch, on either key: a record is a duplicate if its qr_id OR its payload
// fingerprint was already seen. First occurrence wins; accepted records keep
// their original order and carry their fingerprint forward.
func DedupeBatch(records []domain.IncomingRecord) ([]domain.AcceptedRecord, []domain.DuplicateRecord) {
	seenIDs := make(map[string]struct{}, len(records))
	seenHashes := make(map[string]struct{}, len(records))

	accepted := make([]domain.AcceptedRecord, 0, len(records))

	var duplicates []domain.DuplicateRecord

	for _, r := range records {
		hash := Fingerprint(r.QRText)

		_, idSeen := seenIDs[r.QRID]
		_, hashSeen := seenHashes[hash]

		if idSeen || hashSeen {
			duplicates = append(duplicates, domain.DuplicateRecord{
				QRID:      r.QRID,
				LotNumber: r.LotNumber,
				Reason:    domain.ReasonDuplicateInUpload,
			})

			continue
		}

		seenIDs[r.QRID] = struct{}{}
		seenHashes[hash] = struct{}{}

		accepted = append(accepted, domain.AcceptedRecord{
			IncomingRecord: r,
			Fingerprint:    hash,
		})
	}

	return accepted, duplicates
}

// CheckAgainstStore removes records whose qr_id or fingerprint already exists
// in the identifier store. The input is checked in consecutive chunks of
// chunkSize, one existence query per chunk; chunking is a throughput measure
// only and the result is identical to a single unchunked query. Output order
// follows input order.
func CheckAgainstStore(ctx context.Context, store IdentifierStore, records []domain.AcceptedRecord, chunkSize int) ([]domain.AcceptedRecord, []domain.DuplicateRecord, error) {
	if chunkSize <= 0 {
		return nil, nil, fmt.Errorf("store check: chunk size must be positive, got %d", chunkSize)
	}

	accepted := make([]domain.AcceptedRecord, 0, len(records))

	var duplicates []domain.DuplicateRecord

	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}

		chunk := records[start:end]

		qrIDs := make([]string, len(chunk))
		hashes := make([]string, len(chunk))

		for i, r := range chunk {
			qrIDs[i] = r.QRID
			hashes[i] = r.Fingerprint
		}

		existing, err := store.ExistsAny(ctx, qrIDs, hashes)
		if err != nil {
			return nil, nil, fmt.Errorf("store check chunk %d: %w", start/chunkSize, err)
		}

		for _, r := range chunk {
			_, idExists := existing.QRIDs[r.QRID]
			_, hashExists := existing.Hashes[r.Fingerprint]

			if idExists || hashExists {
				duplicates = append(duplicates, domain.DuplicateRecord{
					QRID:      r.QRID,
					LotNumber: r.LotNumber,
					Reason:    domain.ReasonDuplicateInDatabase,
				})

				continue
			}

			accepted = append(accepted, r)
		}
	}

	return accepted, duplicates, nil
}
