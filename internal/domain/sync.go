package domain

import (
	"fmt"
	"time"
)

type SyncType string

const (
	SyncRates        SyncType = "rates"
	SyncInventory    SyncType = "inventory"
	SyncAvailability SyncType = "availability"
	SyncFull         SyncType = "full"
)

func ParseSyncType(s string) (SyncType, error) {
	switch SyncType(s) {
	case SyncRates, SyncInventory, SyncAvailability, SyncFull:
		return SyncType(s), nil
	}
	return "", fmt.Errorf("%w: sync type %q", ErrInvalidEnum, s)
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// SyncLog is the append-only audit record of one sync run. It is created in
// `running` at run start and finalized exactly once; after EndTime is set no
// field changes again.
type SyncLog struct {
	SyncID     string
	PropertyID int64
	Channel    ChannelName
	Type       SyncType
	Status     RunStatus

	StartTime time.Time
	EndTime   *time.Time

	RecordsProcessed  int
	SuccessfulRecords int
	FailedRecords     int
	Errors            []string
	Warnings          []string

	TriggeredBy string
	DurationMS  int64
	AvgRecordMS float64
	RetryCount  int
	CreatedAt   time.Time
}

// ItemFailure names one payload item an adapter could not apply and why.
// Reasons come from the channel's response and must not contain credentials.
type ItemFailure struct {
	Item   string
	Reason string
}

// SyncResult is what one adapter call reports back. On transport or auth
// failure Processed still counts the items that were attempted, never the
// items that would have been attempted.
type SyncResult struct {
	Success   bool
	Processed int
	Succeeded int
	Failed    int
	Duration  time.Duration
	Failures  []ItemFailure
	Timestamp time.Time
}

// Merge folds another sub-call result into r (used by full syncs).
func (r *SyncResult) Merge(o SyncResult) {
	r.Processed += o.Processed
	r.Succeeded += o.Succeeded
	r.Failed += o.Failed
	r.Duration += o.Duration
	r.Failures = append(r.Failures, o.Failures...)
	r.Success = r.Failed == 0
	if o.Timestamp.After(r.Timestamp) {
		r.Timestamp = o.Timestamp
	}
}

// RatePayload is one (room, date) nightly price pushed to a channel.
type RatePayload struct {
	RoomCategory string
	Plan         PlanType
	Occupancy    OccupancyType
	Date         time.Time
	PriceMinor   int64
	Currency     string
}

// InventoryPayload is the sellable room count for one (room, date).
type InventoryPayload struct {
	RoomCategory string
	Date         time.Time
	TotalRooms   int
	Available    int
}

// AvailabilityPayload is the open/closed state for one (room, date).
type AvailabilityPayload struct {
	RoomCategory string
	Date         time.Time
	Open         bool
}

// Key renders the item identity used in per-item failure reports.
func (p RatePayload) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.RoomCategory, p.Plan, p.Occupancy, p.Date.Format(time.DateOnly))
}

func (p InventoryPayload) Key() string {
	return fmt.Sprintf("%s/%s", p.RoomCategory, p.Date.Format(time.DateOnly))
}

func (p AvailabilityPayload) Key() string {
	return fmt.Sprintf("%s/%s", p.RoomCategory, p.Date.Format(time.DateOnly))
}
