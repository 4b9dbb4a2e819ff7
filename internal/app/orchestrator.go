package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"staysync/internal/adapters/observability"
	"staysync/internal/domain"
)

// RunSummary is what the trigger API returns per channel attempted: whether
// the run was accepted, and its final outcome once complete.
type RunSummary struct {
	SyncID  string             `json:"sync_id,omitempty"`
	Channel domain.ChannelName `json:"channel"`
	Status  domain.RunStatus   `json:"status,omitempty"`
	Result  domain.SyncResult  `json:"result"`
	Err     string             `json:"error,omitempty"`
}

// SyncService drives sync runs: one (property, channel, type) at a time per
// pair, channels isolated from each other, all outcomes captured in the sync
// log rather than thrown.
type SyncService struct {
	channels  domain.ChannelRepository
	logs      domain.SyncLogRepository
	rates     *RateService
	inventory domain.InventorySource
	factory   domain.AdapterFactory

	horizon     int           // days of rates/inventory pushed per run
	callTimeout time.Duration // bound on every adapter call
	currency    string
	maxParallel int64 // fan-out width for "sync all"
}

func NewSyncService(ch domain.ChannelRepository, logs domain.SyncLogRepository, rates *RateService,
	inv domain.InventorySource, f domain.AdapterFactory, horizonDays int, callTimeout time.Duration,
	currency string, maxParallel int64) *SyncService {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &SyncService{
		channels: ch, logs: logs, rates: rates, inventory: inv, factory: f,
		horizon: horizonDays, callTimeout: callTimeout, currency: currency, maxParallel: maxParallel,
	}
}

// SyncChannel runs one sync for (property, channel). Configuration errors
// (missing/disabled config, bad credentials, unsupported channel) fail fast
// before any sync log is created; everything after log creation is captured
// into the log instead of returned.
func (s *SyncService) SyncChannel(ctx context.Context, propertyID int64, name domain.ChannelName, typ domain.SyncType, actor string) (RunSummary, error) {
	cfg, err := s.channels.GetChannel(ctx, propertyID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RunSummary{Channel: name}, fmt.Errorf("%w: %s", domain.ErrChannelNotConfigured, name)
		}
		return RunSummary{Channel: name}, err
	}
	if !cfg.Enabled {
		return RunSummary{Channel: name}, fmt.Errorf("%w: %s", domain.ErrChannelDisabled, name)
	}
	if len(cfg.Credentials) == 0 {
		return RunSummary{Channel: name}, fmt.Errorf("%w: %s", domain.ErrMissingCredentials, name)
	}

	// Registry validates credential shape before any network call.
	adapter, err := s.factory.Create(name, cfg.Credentials)
	if err != nil {
		return RunSummary{Channel: name}, err
	}

	run := domain.SyncLog{
		SyncID:      uuid.NewString(),
		PropertyID:  propertyID,
		Channel:     name,
		Type:        typ,
		Status:      domain.RunRunning,
		StartTime:   time.Now().UTC(),
		TriggeredBy: actor,
	}
	// Persisted lock: the conditional insert is what enforces the
	// no-concurrent-sync invariant across service instances.
	if err := s.logs.Create(ctx, run); err != nil {
		return RunSummary{Channel: name}, err
	}
	if err := s.channels.SetSyncStatus(ctx, propertyID, name, domain.SyncSyncing); err != nil {
		log.Warn().Err(err).Int64("property", propertyID).Str("channel", string(name)).
			Msg("could not mark channel syncing")
	}

	total, errs, warns := s.execute(ctx, adapter, cfg, propertyID, typ)
	return s.finalize(ctx, run, cfg, total, errs, warns)
}

// execute pushes the sub-steps for typ in fixed order (rates, inventory,
// availability). A failing earlier step never aborts a later one.
func (s *SyncService) execute(ctx context.Context, adapter domain.ChannelAdapter, cfg domain.ChannelConfig, propertyID int64, typ domain.SyncType) (domain.SyncResult, []string, []string) {
	var (
		total domain.SyncResult
		errs  []string
		warns []string
	)

	step := func(kind domain.SyncType, push func(context.Context) (domain.SyncResult, int, error)) {
		if typ != kind && typ != domain.SyncFull {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		res, attempted, err := push(cctx)
		if err != nil {
			// Transport/auth failure: counts reflect items attempted.
			if res.Processed == 0 && attempted > 0 {
				res.Processed = attempted
				res.Failed = attempted
			}
			errs = append(errs, fmt.Sprintf("%s push failed: %s", kind, sanitize(err, cfg.Credentials)))
		}
		for _, f := range res.Failures {
			warns = append(warns, fmt.Sprintf("%s %s: %s", kind, f.Item, f.Reason))
		}
		total.Merge(res)
	}

	step(domain.SyncRates, func(cctx context.Context) (domain.SyncResult, int, error) {
		items, warn, err := s.buildRatePayloads(ctx, propertyID)
		if err != nil {
			return domain.SyncResult{}, 0, fmt.Errorf("build rate payload: %w", err)
		}
		if warn != "" {
			warns = append(warns, warn)
		}
		res, err := adapter.SyncRates(cctx, propertyID, items)
		return res, len(items), err
	})
	step(domain.SyncInventory, func(cctx context.Context) (domain.SyncResult, int, error) {
		items, err := s.buildInventoryPayloads(ctx, propertyID)
		if err != nil {
			return domain.SyncResult{}, 0, fmt.Errorf("build inventory payload: %w", err)
		}
		res, err := adapter.SyncInventory(cctx, propertyID, items)
		return res, len(items), err
	})
	step(domain.SyncAvailability, func(cctx context.Context) (domain.SyncResult, int, error) {
		inv, err := s.buildInventoryPayloads(ctx, propertyID)
		if err != nil {
			return domain.SyncResult{}, 0, fmt.Errorf("build availability payload: %w", err)
		}
		items := make([]domain.AvailabilityPayload, 0, len(inv))
		for _, p := range inv {
			items = append(items, domain.AvailabilityPayload{
				RoomCategory: p.RoomCategory,
				Date:         p.Date,
				Open:         p.Available > 0,
			})
		}
		res, err := adapter.SyncAvailability(cctx, propertyID, items)
		return res, len(items), err
	})

	return total, errs, warns
}

// finalize writes the log and the channel status exactly once, guarding
// against runs cancelled while adapter calls were in flight.
func (s *SyncService) finalize(ctx context.Context, run domain.SyncLog, cfg domain.ChannelConfig, total domain.SyncResult, errs, warns []string) (RunSummary, error) {
	now := time.Now().UTC()

	// Stale-result guard: an operator may have cancelled this run while we
	// were pushing. Cancelled runs take no further state updates.
	if cur, err := s.logs.Get(ctx, run.SyncID); err == nil && cur.Status != domain.RunRunning {
		log.Info().Str("sync_id", run.SyncID).Str("status", string(cur.Status)).
			Msg("run finalized externally; dropping adapter results")
		return RunSummary{SyncID: run.SyncID, Channel: run.Channel, Status: cur.Status, Result: total}, nil
	}

	status := domain.RunCompleted
	fullFailure := (total.Processed > 0 && total.Succeeded == 0 && total.Failed == total.Processed) ||
		(total.Processed == 0 && len(errs) > 0)
	if fullFailure {
		status = domain.RunFailed
	}

	run.Status = status
	run.EndTime = &now
	run.RecordsProcessed = total.Processed
	run.SuccessfulRecords = total.Succeeded
	run.FailedRecords = total.Failed
	run.Errors = errs
	run.Warnings = warns
	run.DurationMS = now.Sub(run.StartTime).Milliseconds()
	if total.Processed > 0 {
		run.AvgRecordMS = float64(run.DurationMS) / float64(total.Processed)
	}

	if err := s.logs.Finalize(ctx, run); err != nil {
		if errors.Is(err, domain.ErrRunFinalized) {
			// Lost the race with a cancel; same guard as above.
			return RunSummary{SyncID: run.SyncID, Channel: run.Channel, Status: domain.RunCancelled, Result: total}, nil
		}
		return RunSummary{SyncID: run.SyncID, Channel: run.Channel}, err
	}

	chanStatus := domain.SyncActive
	if status == domain.RunFailed {
		chanStatus = domain.SyncError
	}
	fullSuccess := status == domain.RunCompleted && total.Failed == 0 && len(errs) == 0
	if err := s.channels.FinishSync(ctx, run.PropertyID, run.Channel, chanStatus, now, fullSuccess, status == domain.RunFailed); err != nil {
		log.Error().Err(err).Str("sync_id", run.SyncID).Msg("channel status update failed")
	}

	observability.ObserveSyncRun(string(run.Channel), string(run.Type), string(status),
		total.Succeeded, total.Failed, now.Sub(run.StartTime))

	log.Info().
		Str("sync_id", run.SyncID).
		Int64("property", run.PropertyID).
		Str("channel", string(run.Channel)).
		Str("type", string(run.Type)).
		Str("status", string(status)).
		Int("processed", total.Processed).
		Int("failed", total.Failed).
		Dur("duration", now.Sub(run.StartTime)).
		Msg("sync run finished")

	return RunSummary{SyncID: run.SyncID, Channel: run.Channel, Status: status, Result: total}, nil
}

// SyncAll fans out one independent run per enabled channel. A channel's
// failure (config or adapter) never blocks or rolls back another channel's
// run.
func (s *SyncService) SyncAll(ctx context.Context, propertyID int64, typ domain.SyncType, actor string) ([]RunSummary, error) {
	cfgs, err := s.channels.ListChannels(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []RunSummary
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(s.maxParallel)
	)
	for _, cfg := range cfgs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return out, err
		}
		wg.Add(1)
		go func(name domain.ChannelName) {
			defer wg.Done()
			defer sem.Release(1)

			sum, err := s.SyncChannel(ctx, propertyID, name, typ, actor)
			if err != nil {
				sum.Err = err.Error()
			}
			mu.Lock()
			out = append(out, sum)
			mu.Unlock()
		}(cfg.Channel)
	}
	wg.Wait()
	return out, nil
}

// CancelRun marks a running sync cancelled. The orchestrator's finalize
// guard then drops any in-flight adapter results for it.
func (s *SyncService) CancelRun(ctx context.Context, syncID string) error {
	run, err := s.logs.Get(ctx, syncID)
	if err != nil {
		return err
	}
	if err := s.logs.Cancel(ctx, syncID, time.Now().UTC()); err != nil {
		return err
	}
	if err := s.channels.SetSyncStatus(ctx, run.PropertyID, run.Channel, domain.SyncActive); err != nil {
		log.Warn().Err(err).Str("sync_id", syncID).Msg("could not reset channel after cancel")
	}
	log.Info().Str("sync_id", syncID).Msg("sync run cancelled")
	return nil
}

// TestChannel probes the channel with the stored credentials and records the
// resulting connection status.
func (s *SyncService) TestChannel(ctx context.Context, propertyID int64, name domain.ChannelName) (domain.ConnectionStatus, error) {
	cfg, err := s.channels.GetChannel(ctx, propertyID, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", domain.ErrChannelNotConfigured, name)
		}
		return "", err
	}
	adapter, err := s.factory.Create(name, cfg.Credentials)
	if err != nil {
		return "", err
	}
	_ = s.channels.SetConnectionStatus(ctx, propertyID, name, domain.ConnTesting)

	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	status, err := adapter.TestConnection(cctx)
	if err != nil {
		status = domain.ConnError
	}
	if serr := s.channels.SetConnectionStatus(ctx, propertyID, name, status); serr != nil {
		log.Warn().Err(serr).Str("channel", string(name)).Msg("could not record connection status")
	}
	return status, err
}

// SweepStuckRuns force-fails runs that have been `running` longer than
// maxAge, so no run is ever left in `running` indefinitely. Returns the
// number of runs swept.
func (s *SyncService) SweepStuckRuns(ctx context.Context, maxAge time.Duration) (int, error) {
	stuck, err := s.logs.StuckRuns(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, run := range stuck {
		now := time.Now().UTC()
		run.Status = domain.RunFailed
		run.EndTime = &now
		run.Errors = append(run.Errors, fmt.Sprintf("run exceeded max duration %s", maxAge))
		run.DurationMS = now.Sub(run.StartTime).Milliseconds()
		if err := s.logs.Finalize(ctx, run); err != nil {
			if errors.Is(err, domain.ErrRunFinalized) {
				continue
			}
			return swept, err
		}
		if err := s.channels.FinishSync(ctx, run.PropertyID, run.Channel, domain.SyncError, now, false, true); err != nil {
			log.Error().Err(err).Str("sync_id", run.SyncID).Msg("channel status update failed during sweep")
		}
		log.Warn().Str("sync_id", run.SyncID).Int64("property", run.PropertyID).
			Str("channel", string(run.Channel)).Msg("stuck sync run forced to failed")
		swept++
	}
	return swept, nil
}

// buildRatePayloads resolves every (room, plan, occupancy, night) in the sync
// horizon. Unpriced combinations are skipped and surfaced as one data-quality
// warning, not pushed as zero prices.
func (s *SyncService) buildRatePayloads(ctx context.Context, propertyID int64) ([]domain.RatePayload, string, error) {
	cats, err := s.rates.RoomCategories(ctx, propertyID)
	if err != nil {
		return nil, "", err
	}
	from := domain.Day(time.Now())
	to := from.AddDate(0, 0, s.horizon-1)

	var (
		out     []domain.RatePayload
		skipped int
	)
	for _, cat := range cats {
		for _, plan := range []domain.PlanType{domain.PlanEP, domain.PlanCP, domain.PlanMAP, domain.PlanAP} {
			for _, occ := range []domain.OccupancyType{domain.OccSingle, domain.OccDouble, domain.OccTriple, domain.OccQuad} {
				key := domain.RateKey{PropertyID: propertyID, RoomCategory: cat, Plan: plan, Occupancy: occ}
				nights, err := s.rates.ResolveRange(ctx, key, from, to)
				if err != nil {
					return nil, "", err
				}
				for _, n := range nights {
					if !n.Found {
						skipped++
						continue
					}
					out = append(out, domain.RatePayload{
						RoomCategory: cat,
						Plan:         plan,
						Occupancy:    occ,
						Date:         n.Date,
						PriceMinor:   n.PriceMinor,
						Currency:     s.currency,
					})
				}
			}
		}
	}
	warn := ""
	if skipped > 0 {
		warn = fmt.Sprintf("rates: %d unpriced nights skipped", skipped)
	}
	return out, warn, nil
}

func (s *SyncService) buildInventoryPayloads(ctx context.Context, propertyID int64) ([]domain.InventoryPayload, error) {
	cats, err := s.rates.RoomCategories(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	from := domain.Day(time.Now())
	to := from.AddDate(0, 0, s.horizon-1)

	var out []domain.InventoryPayload
	for _, cat := range cats {
		items, err := s.inventory.Availability(ctx, propertyID, cat, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// sanitize strips credential values out of error text before it lands in a
// sync log or a log line.
func sanitize(err error, creds domain.Credentials) string {
	msg := err.Error()
	for _, v := range creds {
		if v != "" {
			msg = strings.ReplaceAll(msg, v, "[redacted]")
		}
	}
	return msg
}
