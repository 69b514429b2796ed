package prediction

import "errors"

// Sentinel error kinds for this package.
var (
	ErrScale    = errors.New("scale features failed")
	ErrClassify = errors.New("classify failed")
)
