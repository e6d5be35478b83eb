package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrMissingFeeData    = errors.New("missing fee data")
	ErrInvalidQuote      = errors.New("invalid quote")
	ErrInsufficientDepth = errors.New("insufficient depth")
	ErrStaleQuote        = errors.New("stale quote")
	ErrUnknownVenue      = errors.New("unknown venue")
	ErrUnknownSymbol     = errors.New("unknown symbol")
	ErrOutOfOrder        = errors.New("update older than cached entry")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrContextDone       = errors.New("context cancelled")
	ErrLockHeld          = errors.New("lock already held")
)
