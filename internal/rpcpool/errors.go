package rpcpool

import "errors"

// Only InvalidInput and DeadlineExceeded are meant to reach a caller
// outside this package; everything else is recovered or downgraded to
// an empty detector output by callers.
var (
	ErrTransientRPC      = errors.New("transient rpc error")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
	ErrDeadlineExceeded  = errors.New("deadline exceeded")
	ErrInvalidInput      = errors.New("invalid input")
)
