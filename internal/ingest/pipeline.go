package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/printory/qrledger/internal/core/domain"
	"github.com/printory/qrledger/internal/export"
	"github.com/printory/qrledger/internal/platform/observability"
	db "github.com/printory/qrledger/internal/storage"
)

// Log key constants for the pipeline.
const (
	logKeySessionID = "session_id"
	logKeyLotNumber = "lot_number"
	logKeyTotal     = "total"
	logKeyValid     = "valid"
	logKeyDuplicate = "duplicates"
)

// Store is everything the pipeline needs from the persistent store. The
// identifier rows it writes are append-only ground truth for future batches.
type Store interface {
	IdentifierStore
	CreateUploadSession(ctx context.Context, tokenID int64, total, valid, duplicates int) (int64, error)
	CreateLot(ctx context.Context, lot *domain.Lot) (int64, error)
	InsertIdentifiers(ctx context.Context, records []domain.AcceptedRecord, sessionID int64, chunkSize int) (int64, error)
}

// LotWriter serializes one lot's records to a durable export file.
type LotWriter interface {
	WriteLot(lotNumber string, records []domain.AcceptedRecord) (export.FileInfo, error)
}

// Options tune the pipeline's chunking and store timeouts.
type Options struct {
	// CheckChunkSize bounds one duplicate-check query against the store.
	CheckChunkSize int
	// InsertChunkSize bounds one identifier bulk insert.
	InsertChunkSize int
	// StoreTimeout bounds each individual store operation.
	StoreTimeout time.Duration
}

const (
	defaultCheckChunkSize  = 1000
	defaultInsertChunkSize = 5000
	defaultStoreTimeout    = 30 * time.Second
)

// Pipeline sequences one batch through dedup, partitioning, export and
// identifier recording. One linear pass, no internal parallelism; concurrent
// batches are serialized only by the store's unique constraints.
type Pipeline struct {
	store  Store
	writer LotWriter
	opts   Options
	logger *zerolog.Logger
}

func NewPipeline(store Store, writer LotWriter, opts Options, logger *zerolog.Logger) *Pipeline {
	if opts.CheckChunkSize <= 0 {
		opts.CheckChunkSize = defaultCheckChunkSize
	}

	if opts.InsertChunkSize <= 0 {
		opts.InsertChunkSize = defaultInsertChunkSize
	}

	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}

	return &Pipeline{
		store:  store,
		writer: writer,
		opts:   opts,
		logger: logger,
	}
}

// Process runs one batch end to end and returns its summary.
//
// State machine: received → intra-batch-deduped → store-checked →
// session-recorded → partitioned → exported per lot → identifiers-recorded →
// summarized. If no records survive the duplicate checks it returns
// ErrAllDuplicates before any durable write. An export failure aborts the
// batch but leaves already-exported lots committed (see ExportError).
func (p *Pipeline) Process(ctx context.Context, tokenID int64, records []domain.IncomingRecord) (*domain.BatchSummary, error) {
	started := time.Now()

	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	accepted, uploadDupes := DedupeBatch(records)

	checkStart := time.Now()

	accepted, dbDupes, err := p.checkStore(ctx, accepted)
	if err != nil {
		observability.BatchesTotal.WithLabelValues(observability.OutcomeError).Inc()
		return nil, &StoreError{Op: "duplicate check", Err: err}
	}

	observability.StoreCheckDuration.Observe(time.Since(checkStart).Seconds())

	duplicates := append(uploadDupes, dbDupes...)

	if len(accepted) == 0 {
		p.logger.Warn().
			Int(logKeyTotal, len(records)).
			Int(logKeyDuplicate, len(duplicates)).
			Msg("batch rejected, all records are duplicates")
		observability.BatchesTotal.WithLabelValues(observability.OutcomeAllDuplicates).Inc()

		return nil, ErrAllDuplicates
	}

	sessionID, err := p.createSession(ctx, tokenID, len(records), len(accepted), len(duplicates))
	if err != nil {
		observability.BatchesTotal.WithLabelValues(observability.OutcomeError).Inc()
		return nil, &StoreError{Op: "create upload session", Err: err}
	}

	lotsCreated, err := p.exportLots(ctx, sessionID, accepted)
	if err != nil {
		observability.BatchesTotal.WithLabelValues(observability.OutcomeError).Inc()
		return nil, err
	}

	if err := p.recordIdentifiers(ctx, accepted, sessionID); err != nil {
		observability.BatchesTotal.WithLabelValues(observability.OutcomeError).Inc()
		return nil, &StoreError{Op: "record identifiers", SessionID: sessionID, Err: err}
	}

	p.observeBatch(started, len(accepted), duplicates)

	p.logger.Info().
		Int64(logKeySessionID, sessionID).
		Int(logKeyTotal, len(records)).
		Int(logKeyValid, len(accepted)).
		Int(logKeyDuplicate, len(duplicates)).
		Strs("lots", lotsCreated).
		Msg("batch ingested")

	return &domain.BatchSummary{
		SessionID:   sessionID,
		Total:       len(records),
		Valid:       len(accepted),
		Duplicates:  len(duplicates),
		LotsCreated: lotsCreated,
		Sample:      sampleDuplicates(duplicates),
	}, nil
}

// checkStore runs the chunked persistent duplicate check with a bounded
// timeout per store call.
func (p *Pipeline) checkStore(ctx context.Context, records []domain.AcceptedRecord) ([]domain.AcceptedRecord, []domain.DuplicateRecord, error) {
	return CheckAgainstStore(ctx, timeoutStore{inner: p.store, timeout: p.opts.StoreTimeout}, records, p.opts.CheckChunkSize)
}

func (p *Pipeline) createSession(ctx context.Context, tokenID int64, total, valid, duplicates int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()

	return p.store.CreateUploadSession(ctx, tokenID, total, valid, duplicates)
}

// exportLots writes one file and one lot row per partition. On failure the
// lots already exported stay committed; the error names the failed lot and
// the lots written so far.
func (p *Pipeline) exportLots(ctx context.Context, sessionID int64, accepted []domain.AcceptedRecord) ([]string, error) {
	partitions := PartitionByLot(accepted)
	lotsCreated := make([]string, 0, len(partitions))

	for _, part := range partitions {
		info, err := p.writer.WriteLot(part.LotNumber, part.Records)
		if err != nil {
			return nil, &ExportError{LotNumber: part.LotNumber, LotsExported: lotsCreated, Err: err}
		}

		lot := &domain.Lot{
			LotNumber:       part.LotNumber,
			RecordCount:     len(part.Records),
			FilePath:        info.Path,
			FileName:        info.Name,
			UploadSessionID: sessionID,
		}

		if err := p.createLot(ctx, lot); err != nil {
			return nil, &ExportError{LotNumber: part.LotNumber, LotsExported: lotsCreated, Err: err}
		}

		lotsCreated = append(lotsCreated, part.LotNumber)

		observability.LotsExported.Inc()
		observability.ExportBytes.Add(float64(info.Bytes))

		p.logger.Debug().
			Int64(logKeySessionID, sessionID).
			Str(logKeyLotNumber, part.LotNumber).
			Int("records", len(part.Records)).
			Str("file", info.Name).
			Msg("lot exported")
	}

	return lotsCreated, nil
}

func (p *Pipeline) createLot(ctx context.Context, lot *domain.Lot) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()

	_, err := p.store.CreateLot(ctx, lot)

	return err
}

// recordIdentifiers persists the accepted set. Rows skipped by the store's
// unique constraints lost a race to a concurrent batch; they are logged and
// counted, not treated as errors.
func (p *Pipeline) recordIdentifiers(ctx context.Context, accepted []domain.AcceptedRecord, sessionID int64) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()

	inserted, err := p.store.InsertIdentifiers(ctx, accepted, sessionID, p.opts.InsertChunkSize)
	if err != nil {
		return err
	}

	if skipped := int64(len(accepted)) - inserted; skipped > 0 {
		observability.IdentifierConflicts.Add(float64(skipped))

		p.logger.Warn().
			Int64(logKeySessionID, sessionID).
			Int64("skipped", skipped).
			Msg("identifiers lost insert race to a concurrent batch")
	}

	return nil
}

func (p *Pipeline) observeBatch(started time.Time, valid int, duplicates []domain.DuplicateRecord) {
	observability.BatchesTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
	observability.BatchDuration.Observe(time.Since(started).Seconds())
	observability.RecordsTotal.WithLabelValues(observability.RecordAccepted).Add(float64(valid))
	observability.RecordsTotal.WithLabelValues(observability.RecordDropped).Add(float64(len(duplicates)))

	for _, d := range duplicates {
		observability.DuplicatesTotal.WithLabelValues(d.Reason).Inc()
	}
}

// sampleDuplicates truncates the duplicate list for reporting. The summary's
// duplicate count always reflects the full total.
func sampleDuplicates(duplicates []domain.DuplicateRecord) []domain.DuplicateRecord {
	if len(duplicates) <= domain.MaxDuplicateSample {
		return duplicates
	}

	return duplicates[:domain.MaxDuplicateSample]
}

// timeoutStore bounds each ExistsAny call with the configured timeout so a
// hung store cannot stall the batch indefinitely.
type timeoutStore struct {
	inner   IdentifierStore
	timeout time.Duration
}

func (s timeoutStore) ExistsAny(ctx context.Context, qrIDs, hashes []string) (db.ExistsAnyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.inner.ExistsAny(ctx, qrIDs, hashes)
}
