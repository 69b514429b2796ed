package artifact

import "errors"

// Sentinel error kinds for this package.
var (
	ErrRead         = errors.New("read artifact failed")
	ErrDecode       = errors.New("decode artifact failed")
	ErrUnknownKind  = errors.New("unknown artifact kind")
	ErrDimension    = errors.New("artifact dimension mismatch")
	ErrFeatureOrder = errors.New("artifact feature order mismatch")
	ErrTreeLayout   = errors.New("invalid tree layout")
)
