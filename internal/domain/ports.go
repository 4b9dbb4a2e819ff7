package domain

import (
	"context"
	"time"
)

type RateRepository interface {
	// Write paths (admin boundary; entries are validated before they land)
	SaveRateEntry(ctx context.Context, e RateEntry) (int64, error)

	// DeactivateRateEntry soft-disables the entry and returns it so the
	// caller can invalidate the affected cache window. Entries are never
	// physically deleted.
	DeactivateRateEntry(ctx context.Context, propertyID, rateID int64) (RateEntry, error)

	// ActiveEntries returns every active entry for the key whose window
	// covers date (BASE entries always qualify), ordered by updated_at
	// descending then id descending so tie-breaks are deterministic.
	ActiveEntries(ctx context.Context, key RateKey, date time.Time) ([]RateEntry, error)

	// RoomCategories lists room categories with at least one active entry,
	// used to build sync payloads.
	RoomCategories(ctx context.Context, propertyID int64) ([]string, error)
}

type ChannelRepository interface {
	GetChannel(ctx context.Context, propertyID int64, name ChannelName) (ChannelConfig, error)
	ListChannels(ctx context.Context, propertyID int64) ([]ChannelConfig, error)

	// ListEnabledPairs feeds the scheduled full-sync fan-out.
	ListEnabledPairs(ctx context.Context) ([]ChannelConfig, error)

	SetSyncStatus(ctx context.Context, propertyID int64, name ChannelName, s SyncStatus) error
	SetConnectionStatus(ctx context.Context, propertyID int64, name ChannelName, s ConnectionStatus) error

	// FinishSync applies the end-of-run policy in one write: syncStatus,
	// lastSyncAt, and the error counter (reset on full success, +1 on full
	// failure, untouched on partial success).
	FinishSync(ctx context.Context, propertyID int64, name ChannelName, s SyncStatus, at time.Time, resetErrors, incrementErrors bool) error
}

type SyncLogRepository interface {
	// Create inserts the log in `running` state. It must fail with
	// ErrSyncInProgress when another log for the same (property, channel)
	// is still running; implementations enforce this with a persisted
	// conditional insert, not an in-memory lock.
	Create(ctx context.Context, l SyncLog) error

	Get(ctx context.Context, syncID string) (SyncLog, error)

	// Finalize writes counts, errors, warnings and metadata exactly once.
	// It must fail with ErrRunFinalized if the run is no longer `running`
	// (already finalized, or cancelled underneath the orchestrator).
	Finalize(ctx context.Context, l SyncLog) error

	// Cancel flips a running log to `cancelled`; ErrRunFinalized when the
	// run already reached a terminal state.
	Cancel(ctx context.Context, syncID string, at time.Time) error

	List(ctx context.Context, q SyncLogQuery) (SyncLogPage, error)

	// StuckRuns returns running logs that started before the cutoff, for
	// the watchdog sweep.
	StuckRuns(ctx context.Context, cutoff time.Time) ([]SyncLog, error)
}

// InventorySource reads current sellable counts; written by the booking
// workflow, read-only here.
type InventorySource interface {
	Availability(ctx context.Context, propertyID int64, roomCategory string, from, to time.Time) ([]InventoryPayload, error)
}

// ChannelAdapter is the uniform per-OTA contract. Adapters translate
// canonical payloads to the channel's wire format and report outcomes; they
// never retry internally and never drop an item without reporting it.
type ChannelAdapter interface {
	TestConnection(ctx context.Context) (ConnectionStatus, error)
	SyncRates(ctx context.Context, propertyID int64, items []RatePayload) (SyncResult, error)
	SyncInventory(ctx context.Context, propertyID int64, items []InventoryPayload) (SyncResult, error)
	SyncAvailability(ctx context.Context, propertyID int64, items []AvailabilityPayload) (SyncResult, error)
}

// AdapterFactory builds a fresh adapter per sync run. Construction is
// stateless: two calls with the same arguments share no mutable state.
type AdapterFactory interface {
	Create(name ChannelName, creds Credentials) (ChannelAdapter, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// SyncLogQuery is the typed filter for log history reads. Nil fields are
// ignored; every field maps to a named, validated parameter.
type SyncLogQuery struct {
	PropertyID int64
	Channel    *ChannelName
	Type       *SyncType
	Status     *RunStatus
	Limit      int
	Cursor     *string // opaque keyset cursor: "<start_time unix nano>|<sync_id>"
}

type SyncLogPage struct {
	Items      []SyncLog
	NextCursor *string
}
