package domain

import "errors"

var (
	// ErrNotFound covers missing properties, channel configs and sync logs.
	ErrNotFound = errors.New("not found")

	ErrInvalidEnum      = errors.New("invalid enum value")
	ErrInvalidRateEntry = errors.New("invalid rate entry")

	// Configuration errors: rejected before any adapter call, never retried.
	ErrUnsupportedChannel   = errors.New("unsupported channel")
	ErrChannelDisabled      = errors.New("channel is disabled")
	ErrChannelNotConfigured = errors.New("channel is not configured")
	ErrMissingCredentials   = errors.New("missing channel credentials")

	// ErrSyncInProgress rejects a second concurrent run for the same
	// (property, channel) pair. Never queued silently.
	ErrSyncInProgress = errors.New("sync already running for channel")

	// ErrRunFinalized guards against double finalization and against
	// applying adapter results to a run that was cancelled underneath us.
	ErrRunFinalized = errors.New("sync run already finalized")
)
