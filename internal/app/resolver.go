package app

import (
	"context"
	"fmt"
	"time"

	"staysync/internal/domain"
)

// maxInvalidateDays caps how many per-night cache keys a single rate write
// evicts; anything beyond ages out via TTL.
const maxInvalidateDays = 370

// RateService resolves nightly prices by walking pricing tiers in precedence
// order: DIRECT, then PLAN_BASED, then BASE. Resolution is read-through
// cached per night.
type RateService struct {
	repo     domain.RateRepository
	cache    domain.Cache
	cacheTTL time.Duration
	horizon  int // days ahead a BASE write can affect cached nights
}

func NewRateService(r domain.RateRepository, c domain.Cache, ttl time.Duration, horizonDays int) *RateService {
	return &RateService{repo: r, cache: c, cacheTTL: ttl, horizon: horizonDays}
}

func nightKey(k domain.RateKey, date time.Time) string {
	return fmt.Sprintf("rate:%d:%s:%s:%s:%s",
		k.PropertyID, k.RoomCategory, k.Plan, k.Occupancy, domain.Day(date).Format(time.DateOnly))
}

// ResolveNight returns the effective price for one night. Found=false means
// no active entry covers the night; that is a valid result, not an error —
// fallback pricing is the caller's concern.
func (s *RateService) ResolveNight(ctx context.Context, key domain.RateKey, date time.Time) (domain.ResolvedNight, error) {
	date = domain.Day(date)
	ck := nightKey(key, date)
	var cached domain.ResolvedNight
	if ok, _ := s.cache.Get(ctx, ck, &cached); ok {
		return cached, nil
	}

	entries, err := s.repo.ActiveEntries(ctx, key, date)
	if err != nil {
		return domain.ResolvedNight{}, err
	}

	night := domain.ResolvedNight{Date: date}
	if e, ok := pickEntry(entries, date); ok {
		night = domain.ResolvedNight{
			Date:       date,
			PriceMinor: e.PriceMinor,
			Tier:       e.Tier,
			RateID:     e.ID,
			Found:      true,
		}
	}
	_ = s.cache.Set(ctx, ck, night, int(s.cacheTTL.Seconds()))
	return night, nil
}

// pickEntry walks tiers highest precedence first; a lower tier is consulted
// only when the higher tier found nothing. Entries arrive newest-update-first,
// so the first hit within a tier is the tie-break winner for overlapping
// windows — never averaged, never an error.
func pickEntry(entries []domain.RateEntry, date time.Time) (domain.RateEntry, bool) {
	for _, tier := range []domain.PricingTier{domain.TierDirect, domain.TierPlanBased, domain.TierBase} {
		for _, e := range entries {
			if e.Tier == tier && e.Covers(date) {
				return e, true
			}
		}
	}
	return domain.RateEntry{}, false
}

// ResolveRange resolves each night in [from, to] inclusive, one entry per
// night. Nightly prices are summed by callers; there is no cross-night
// proration.
func (s *RateService) ResolveRange(ctx context.Context, key domain.RateKey, from, to time.Time) ([]domain.ResolvedNight, error) {
	from, to = domain.Day(from), domain.Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", domain.ErrInvalidEnum)
	}
	var out []domain.ResolvedNight
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		n, err := s.ResolveNight(ctx, key, d)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// RoomCategories lists categories with at least one active entry; the sync
// orchestrator builds its rate payloads from this set.
func (s *RateService) RoomCategories(ctx context.Context, propertyID int64) ([]string, error) {
	return s.repo.RoomCategories(ctx, propertyID)
}

// SaveRateEntry validates at the store boundary (malformed enums and windows
// never reach resolution) and evicts the cached nights the write can change.
func (s *RateService) SaveRateEntry(ctx context.Context, e domain.RateEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	id, err := s.repo.SaveRateEntry(ctx, e)
	if err != nil {
		return 0, err
	}
	s.invalidateEntry(ctx, e)
	return id, nil
}

func (s *RateService) DeactivateRateEntry(ctx context.Context, propertyID, rateID int64) error {
	e, err := s.repo.DeactivateRateEntry(ctx, propertyID, rateID)
	if err != nil {
		return err
	}
	s.invalidateEntry(ctx, e)
	return nil
}

func (s *RateService) invalidateEntry(ctx context.Context, e domain.RateEntry) {
	key := e.Key()
	from, to := domain.Day(time.Now()), domain.Day(time.Now()).AddDate(0, 0, s.horizon)
	if e.Tier != domain.TierBase && e.StartDate != nil && e.EndDate != nil {
		from, to = *e.StartDate, *e.EndDate
	}
	for d, n := from, 0; !d.After(to) && n < maxInvalidateDays; d, n = d.AddDate(0, 0, 1), n+1 {
		_ = s.cache.Del(ctx, nightKey(key, d))
	}
}
