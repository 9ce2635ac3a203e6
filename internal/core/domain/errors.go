package domain

import "errors"

// Validation errors for incoming records.
var (
	ErrEmptyQRID        = errors.New("qr_id must not be empty")
	ErrQRIDTooLong      = errors.New("qr_id exceeds 100 characters")
	ErrEmptyQRText      = errors.New("qr_text must not be empty")
	ErrEmptyLotNumber   = errors.New("lot_number must not be empty")
	ErrLotNumberTooLong = errors.New("lot_number exceeds 50 characters")
	ErrEmptyPrintFormat = errors.New("print_format must not be empty")
)
