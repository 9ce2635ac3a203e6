package ingest

import (
	"errors"
	"fmt"
)

// ErrAllDuplicates is returned when every record in a batch was rejected by
// the duplicate checks. The batch aborts with no durable writes.
var ErrAllDuplicates = errors.New("all records are duplicates, no data to upload")

// ExportError reports a failed lot export. Lots exported before the failure
// remain committed with their metadata; the failed lot has neither a file
// nor a lot row.
type ExportError struct {
	LotNumber    string
	LotsExported []string
	Err          error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export lot %q: %v", e.LotNumber, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed identifier store operation with enough context
// for manual remediation.
type StoreError struct {
	Op        string
	SessionID int64
	Err       error
}

func (e *StoreError) Error() string {
	if e.SessionID != 0 {
		return fmt.Sprintf("%s (session %d): %v", e.Op, e.SessionID, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
