package tabular

import "errors"

// Sentinel errors for CSV decoding and encoding.
var (
	ErrEmpty  = errors.New("csv has no header row")
	ErrParse  = errors.New("csv could not be parsed with ',' or ';'")
	ErrExport = errors.New("csv export failed")
)
