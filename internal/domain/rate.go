package domain

import (
	"fmt"
	"time"
)

// PlanType is the meal plan a rate applies to.
type PlanType string

const (
	PlanEP  PlanType = "EP"  // room only
	PlanCP  PlanType = "CP"  // room + breakfast
	PlanMAP PlanType = "MAP" // half board
	PlanAP  PlanType = "AP"  // full board
)

func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(s) {
	case PlanEP, PlanCP, PlanMAP, PlanAP:
		return PlanType(s), nil
	}
	return "", fmt.Errorf("%w: plan type %q", ErrInvalidEnum, s)
}

type OccupancyType string

const (
	OccSingle OccupancyType = "single"
	OccDouble OccupancyType = "double"
	OccTriple OccupancyType = "triple"
	OccQuad   OccupancyType = "quad"
)

func ParseOccupancyType(s string) (OccupancyType, error) {
	switch OccupancyType(s) {
	case OccSingle, OccDouble, OccTriple, OccQuad:
		return OccupancyType(s), nil
	}
	return "", fmt.Errorf("%w: occupancy type %q", ErrInvalidEnum, s)
}

// PricingTier orders rate entries by precedence: DIRECT beats PLAN_BASED
// beats BASE.
type PricingTier string

const (
	TierDirect    PricingTier = "DIRECT"
	TierPlanBased PricingTier = "PLAN_BASED"
	TierBase      PricingTier = "BASE"
)

func ParsePricingTier(s string) (PricingTier, error) {
	switch PricingTier(s) {
	case TierDirect, TierPlanBased, TierBase:
		return PricingTier(s), nil
	}
	return "", fmt.Errorf("%w: pricing tier %q", ErrInvalidEnum, s)
}

// RateKey identifies the combination a rate entry prices.
type RateKey struct {
	PropertyID   int64
	RoomCategory string
	Plan         PlanType
	Occupancy    OccupancyType
}

// RateEntry is one pricing rule. Prices are integer minor units so nightly
// sums never drift. StartDate/EndDate are inclusive, UTC midnight, and set
// only for DIRECT and PLAN_BASED tiers; BASE entries are date-independent.
type RateEntry struct {
	ID           int64
	PropertyID   int64
	RoomCategory string
	Plan         PlanType
	Occupancy    OccupancyType
	Tier         PricingTier
	PriceMinor   int64
	StartDate    *time.Time
	EndDate      *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e RateEntry) Key() RateKey {
	return RateKey{PropertyID: e.PropertyID, RoomCategory: e.RoomCategory, Plan: e.Plan, Occupancy: e.Occupancy}
}

// Covers reports whether the entry applies on the given night. BASE entries
// cover every date.
func (e RateEntry) Covers(date time.Time) bool {
	if e.Tier == TierBase {
		return true
	}
	if e.StartDate == nil || e.EndDate == nil {
		return false
	}
	d := Day(date)
	return !d.Before(*e.StartDate) && !d.After(*e.EndDate)
}

// Validate rejects malformed entries at the store boundary; resolution never
// sees an invalid entry.
func (e RateEntry) Validate() error {
	if e.PropertyID <= 0 {
		return fmt.Errorf("%w: property id", ErrInvalidRateEntry)
	}
	if e.RoomCategory == "" {
		return fmt.Errorf("%w: room category is required", ErrInvalidRateEntry)
	}
	if _, err := ParsePlanType(string(e.Plan)); err != nil {
		return err
	}
	if _, err := ParseOccupancyType(string(e.Occupancy)); err != nil {
		return err
	}
	if _, err := ParsePricingTier(string(e.Tier)); err != nil {
		return err
	}
	if e.PriceMinor <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidRateEntry)
	}
	switch e.Tier {
	case TierBase:
		if e.StartDate != nil || e.EndDate != nil {
			return fmt.Errorf("%w: BASE entries carry no validity window", ErrInvalidRateEntry)
		}
	default:
		if e.StartDate == nil || e.EndDate == nil {
			return fmt.Errorf("%w: %s entries require a validity window", ErrInvalidRateEntry, e.Tier)
		}
		if e.EndDate.Before(*e.StartDate) {
			return fmt.Errorf("%w: validity window ends before it starts", ErrInvalidRateEntry)
		}
	}
	return nil
}

// ResolvedNight is the resolver output for one night. Found=false means no
// active entry priced the night; that is a valid result, not an error.
type ResolvedNight struct {
	Date       time.Time
	PriceMinor int64
	Tier       PricingTier
	RateID     int64
	Found      bool
}

// Day truncates t to UTC midnight. All rate dates are compared at day
// granularity.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
