// Package export writes lot partitions to delimited files on disk.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/printory/qrledger/internal/core/domain"
)

// Columns written per record, in fixed order.
var columns = []string{"qr_id", "qr_text", "lot_number", "print_format"}

const (
	filenameTimeLayout = "20060102_150405"
	suffixHexLen       = 8
	dirPerm            = 0o755
)

// FileInfo describes one written export file.
type FileInfo struct {
	Path  string
	Name  string
	Bytes int64
}

// Writer serializes lots to CSV files under a base directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a writer rooted at dir. The directory is created when
// the first lot is written.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// WriteLot writes one lot's records to a uniquely named CSV file and returns
// its location. The filename is {lot}_{timestamp}_{suffix}.csv: the
// timestamp has second granularity, the random suffix keeps two exports of
// the same lot within one second from colliding. A write failure is fatal
// for the lot; no partially written file is left behind.
func (w *Writer) WriteLot(lotNumber string, records []domain.AcceptedRecord) (FileInfo, error) {
	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return FileInfo{}, fmt.Errorf("create export dir %q: %w", w.dir, err)
	}

	name := w.filename(lotNumber)
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("create export file %q: %w", path, err)
	}

	if err := writeRecords(f, records); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return FileInfo{}, fmt.Errorf("write export file %q: %w", path, err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)

		return FileInfo{}, fmt.Errorf("close export file %q: %w", path, err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat export file %q: %w", path, err)
	}

	return FileInfo{Path: path, Name: name, Bytes: stat.Size()}, nil
}

func (w *Writer) filename(lotNumber string) string {
	timestamp := w.now().Format(filenameTimeLayout)
	suffix := uuid.NewString()[:suffixHexLen]

	return fmt.Sprintf("%s_%s_%s.csv", lotNumber, timestamp, suffix)
}

func writeRecords(f *os.File, records []domain.AcceptedRecord) error {
	cw := csv.NewWriter(f)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range records {
		row := []string{r.QRID, r.QRText, r.LotNumber, r.PrintFormat}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %q: %w", r.QRID, err)
		}
	}

	cw.Flush()

	return cw.Error()
}
