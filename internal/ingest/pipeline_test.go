package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/printory/qrledger/internal/core/domain"
	"github.com/printory/qrledger/internal/export"
	db "github.com/printory/qrledger/internal/storage"
)

var errDiskFull = errors.New("disk full")

type sessionRow struct {
	tokenID                  int64
	total, valid, duplicates int
}

// fakeStore is an in-memory stand-in for the persistent store, including the
// unique-constraint behavior of the identifier insert.
type fakeStore struct {
	qrIDs  map[string]struct{}
	hashes map[string]struct{}

	sessions    []sessionRow
	lots        []domain.Lot
	identifiers []domain.StoredIdentifier

	failCreateLot bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		qrIDs:  make(map[string]struct{}),
		hashes: make(map[string]struct{}),
	}
}

func (f *fakeStore) seed(qrID, text string) {
	f.qrIDs[qrID] = struct{}{}
	f.hashes[Fingerprint(text)] = struct{}{}
}

func (f *fakeStore) ExistsAny(_ context.Context, qrIDs, hashes []string) (db.ExistsAnyResult, error) {
	result := db.ExistsAnyResult{
		QRIDs:  make(map[string]struct{}),
		Hashes: make(map[string]struct{}),
	}

	for _, id := range qrIDs {
		if _, ok := f.qrIDs[id]; ok {
			result.QRIDs[id] = struct{}{}
		}
	}

	for _, h := range hashes {
		if _, ok := f.hashes[h]; ok {
			result.Hashes[h] = struct{}{}
		}
	}

	return result, nil
}

func (f *fakeStore) CreateUploadSession(_ context.Context, tokenID int64, total, valid, duplicates int) (int64, error) {
	f.sessions = append(f.sessions, sessionRow{tokenID: tokenID, total: total, valid: valid, duplicates: duplicates})
	return int64(len(f.sessions)), nil
}

func (f *fakeStore) CreateLot(_ context.Context, lot *domain.Lot) (int64, error) {
	if f.failCreateLot {
		return 0, errors.New("lot insert failed")
	}

	f.lots = append(f.lots, *lot)

	return int64(len(f.lots)), nil
}

func (f *fakeStore) InsertIdentifiers(_ context.Context, records []domain.AcceptedRecord, sessionID int64, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, errors.New("bad chunk size")
	}

	var inserted int64

	for _, r := range records {
		_, idExists := f.qrIDs[r.QRID]
		_, hashExists := f.hashes[r.Fingerprint]

		if idExists || hashExists {
			continue // unique constraint, ON CONFLICT DO NOTHING
		}

		f.qrIDs[r.QRID] = struct{}{}
		f.hashes[r.Fingerprint] = struct{}{}
		f.identifiers = append(f.identifiers, domain.StoredIdentifier{
			QRID:            r.QRID,
			QRTextHash:      r.Fingerprint,
			LotNumber:       r.LotNumber,
			UploadSessionID: sessionID,
		})
		inserted++
	}

	return inserted, nil
}

// failingWriter fails once a given lot comes up.
type failingWriter struct {
	inner   *export.Writer
	failLot string
}

func (w *failingWriter) WriteLot(lotNumber string, records []domain.AcceptedRecord) (export.FileInfo, error) {
	if lotNumber == w.failLot {
		return export.FileInfo{}, errDiskFull
	}

	return w.inner.WriteLot(lotNumber, records)
}

func newTestPipeline(t *testing.T, store Store) *Pipeline {
	t.Helper()

	logger := zerolog.Nop()

	return NewPipeline(store, export.NewWriter(t.TempDir()), Options{}, &logger)
}

func TestPipeline_EndToEnd(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	records := []domain.IncomingRecord{
		record("q1", "payload one", "L9"),
		record("q2", "payload two", "L9"),
		record("q3", "payload three", "L9"),
	}

	summary, err := p.Process(context.Background(), 42, records)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if summary.Total != 3 || summary.Valid != 3 || summary.Duplicates != 0 {
		t.Errorf("summary = %+v, want total=3 valid=3 duplicates=0", summary)
	}

	if len(summary.LotsCreated) != 1 || summary.LotsCreated[0] != "L9" {
		t.Errorf("LotsCreated = %v, want [L9]", summary.LotsCreated)
	}

	if len(store.sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(store.sessions))
	}

	if s := store.sessions[0]; s.tokenID != 42 || s.total != 3 || s.valid != 3 || s.duplicates != 0 {
		t.Errorf("session row = %+v", s)
	}

	if len(store.lots) != 1 || store.lots[0].LotNumber != "L9" || store.lots[0].RecordCount != 3 {
		t.Errorf("lots = %+v, want one L9 lot with 3 records", store.lots)
	}

	if len(store.identifiers) != 3 {
		t.Errorf("identifiers = %d, want 3", len(store.identifiers))
	}

	for i, id := range store.identifiers {
		if id.QRID != records[i].QRID {
			t.Errorf("identifiers[%d].QRID = %q, want %q (original order)", i, id.QRID, records[i].QRID)
		}
	}
}

func TestPipeline_AllDuplicates(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.seed(fmt.Sprintf("q%d", i), fmt.Sprintf("payload %d", i))
	}

	p := newTestPipeline(t, store)

	var records []domain.IncomingRecord
	for i := 0; i < 5; i++ {
		records = append(records, record(fmt.Sprintf("q%d", i), fmt.Sprintf("payload %d", i), "L1"))
	}

	_, err := p.Process(context.Background(), 1, records)
	if !errors.Is(err, ErrAllDuplicates) {
		t.Fatalf("Process() error = %v, want ErrAllDuplicates", err)
	}

	if len(store.sessions) != 0 || len(store.lots) != 0 || len(store.identifiers) != 0 {
		t.Errorf("durable writes after all-duplicates rejection: sessions=%d lots=%d identifiers=%d",
			len(store.sessions), len(store.lots), len(store.identifiers))
	}
}

func TestPipeline_CountInvariant(t *testing.T) {
	store := newFakeStore()
	store.seed("known", "known payload")

	p := newTestPipeline(t, store)

	records := []domain.IncomingRecord{
		record("known", "some text", "L1"),  // db duplicate on id
		record("fresh", "fresh text", "L1"), // accepted
		record("fresh", "other text", "L2"), // upload duplicate on id
		record("late", "fresh text 2", "L2"),
	}

	summary, err := p.Process(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if summary.Valid+summary.Duplicates != summary.Total {
		t.Errorf("valid %d + duplicates %d != total %d", summary.Valid, summary.Duplicates, summary.Total)
	}

	if summary.Total != 4 || summary.Valid != 2 {
		t.Errorf("summary = %+v, want total=4 valid=2", summary)
	}
}

func TestPipeline_MultiLot(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	records := []domain.IncomingRecord{
		record("a", "1", "L1"),
		record("b", "2", "L1"),
		record("c", "3", "L2"),
	}

	summary, err := p.Process(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(summary.LotsCreated) != 2 || summary.LotsCreated[0] != "L1" || summary.LotsCreated[1] != "L2" {
		t.Errorf("LotsCreated = %v, want [L1 L2]", summary.LotsCreated)
	}

	if len(store.lots) != 2 {
		t.Fatalf("lots = %d, want 2", len(store.lots))
	}

	if store.lots[0].RecordCount != 2 || store.lots[1].RecordCount != 1 {
		t.Errorf("lot record counts = [%d %d], want [2 1]", store.lots[0].RecordCount, store.lots[1].RecordCount)
	}
}

func TestPipeline_SampleTruncation(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	records := []domain.IncomingRecord{record("orig", "base payload", "L1")}
	for i := 0; i < 120; i++ {
		// Same qr_id, distinct payloads: every one collides on the id axis.
		records = append(records, record("orig", fmt.Sprintf("payload %d", i), "L1"))
	}

	summary, err := p.Process(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if summary.Duplicates != 120 {
		t.Errorf("Duplicates = %d, want 120 (true total, not sample size)", summary.Duplicates)
	}

	if len(summary.Sample) != domain.MaxDuplicateSample {
		t.Errorf("Sample = %d entries, want %d", len(summary.Sample), domain.MaxDuplicateSample)
	}
}

func TestPipeline_ExportFailureKeepsEarlierLots(t *testing.T) {
	store := newFakeStore()
	logger := zerolog.Nop()

	writer := &failingWriter{inner: export.NewWriter(t.TempDir()), failLot: "L2"}
	p := NewPipeline(store, writer, Options{}, &logger)

	records := []domain.IncomingRecord{
		record("a", "1", "L1"),
		record("b", "2", "L2"),
		record("c", "3", "L3"),
	}

	_, err := p.Process(context.Background(), 1, records)

	var exportErr *ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("Process() error = %v, want *ExportError", err)
	}

	if exportErr.LotNumber != "L2" {
		t.Errorf("failed lot = %q, want L2", exportErr.LotNumber)
	}

	if len(exportErr.LotsExported) != 1 || exportErr.LotsExported[0] != "L1" {
		t.Errorf("LotsExported = %v, want [L1]", exportErr.LotsExported)
	}

	// L1 stays committed, L2 and L3 never gain metadata.
	if len(store.lots) != 1 || store.lots[0].LotNumber != "L1" {
		t.Errorf("lots = %+v, want only L1", store.lots)
	}

	// Identifiers are recorded after all exports, so none were written.
	if len(store.identifiers) != 0 {
		t.Errorf("identifiers = %d, want 0", len(store.identifiers))
	}

	if len(store.sessions) != 1 {
		t.Errorf("sessions = %d, want 1 (session precedes export)", len(store.sessions))
	}
}

func TestPipeline_ValidationRejectsBeforePipeline(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(t, store)

	records := []domain.IncomingRecord{
		{QRID: "", QRText: "x", LotNumber: "L1", PrintFormat: "A4"},
	}

	if _, err := p.Process(context.Background(), 1, records); !errors.Is(err, domain.ErrEmptyQRID) {
		t.Fatalf("Process() error = %v, want ErrEmptyQRID", err)
	}

	if len(store.sessions) != 0 {
		t.Errorf("validation failure must not create a session")
	}
}

func TestPipeline_InsertRaceLogged(t *testing.T) {
	// A concurrent batch recorded q2 between our check and our insert.
	store := newFakeStore()

	raced := false
	store2 := &racingStore{fakeStore: store, onInsert: func() {
		if !raced {
			store.seed("q2", "payload two")

			raced = true
		}
	}}

	logger := zerolog.Nop()
	p := NewPipeline(store2, export.NewWriter(t.TempDir()), Options{}, &logger)

	records := []domain.IncomingRecord{
		record("q1", "payload one", "L1"),
		record("q2", "payload two", "L1"),
	}

	summary, err := p.Process(context.Background(), 1, records)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// The raced record is absorbed by the unique constraint, not an error.
	if summary.Valid != 2 {
		t.Errorf("Valid = %d, want 2 (race detected after summary counts)", summary.Valid)
	}

	if len(store.identifiers) != 1 {
		t.Errorf("identifiers = %d, want 1 (conflicting row skipped)", len(store.identifiers))
	}
}

// racingStore seeds a conflicting identifier right before the insert runs.
type racingStore struct {
	*fakeStore
	onInsert func()
}

func (r *racingStore) InsertIdentifiers(ctx context.Context, records []domain.AcceptedRecord, sessionID int64, chunkSize int) (int64, error) {
	r.onInsert()
	return r.fakeStore.InsertIdentifiers(ctx, records, sessionID, chunkSize)
}
