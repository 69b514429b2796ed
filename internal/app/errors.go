package service

import "errors"

// Sentinel error kinds for the service. Handlers map them to status codes
// with errors.Is.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("classification queue full")
	ErrNotFound     = errors.New("not found")
	ErrClassify     = errors.New("classification failed")
)
