package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staysync/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}

// ---- rate entries ----

// SaveRateEntry inserts a new entry or updates an existing one. Saving an
// active BASE entry deactivates any previous active BASE for the same
// combination in the same transaction, keeping the at-most-one invariant.
func (r *Repo) SaveRateEntry(ctx context.Context, e domain.RateEntry) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if e.Tier == domain.TierBase && e.IsActive {
		if _, err := tx.ExecContext(ctx, deactivateBaseSQL,
			e.PropertyID, e.RoomCategory, string(e.Plan), string(e.Occupancy), e.ID); err != nil {
			return 0, err
		}
	}

	id := e.ID
	if e.ID == 0 {
		res, err := tx.ExecContext(ctx, insertRateEntrySQL,
			e.PropertyID, e.RoomCategory, string(e.Plan), string(e.Occupancy), string(e.Tier),
			e.PriceMinor, nullDate(e.StartDate), nullDate(e.EndDate), e.IsActive)
		if err != nil {
			return 0, err
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	} else {
		res, err := tx.ExecContext(ctx, updateRateEntrySQL,
			e.PriceMinor, nullDate(e.StartDate), nullDate(e.EndDate), e.IsActive,
			e.ID, e.PropertyID)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// The row may exist with identical values; distinguish from missing.
			var exists int
			if err := tx.QueryRowContext(ctx, rateExistsSQL, e.ID, e.PropertyID).Scan(&exists); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return 0, fmt.Errorf("rate entry %d: %w", e.ID, domain.ErrNotFound)
				}
				return 0, err
			}
		}
	}
	return id, tx.Commit()
}

func (r *Repo) DeactivateRateEntry(ctx context.Context, propertyID, rateID int64) (domain.RateEntry, error) {
	e, err := r.getRateEntry(ctx, propertyID, rateID)
	if err != nil {
		return domain.RateEntry{}, err
	}
	if _, err := r.db.ExecContext(ctx, deactivateRateSQL, rateID, propertyID); err != nil {
		return domain.RateEntry{}, err
	}
	e.IsActive = false
	return e, nil
}

func (r *Repo) getRateEntry(ctx context.Context, propertyID, rateID int64) (domain.RateEntry, error) {
	row := r.db.QueryRowContext(ctx, getRateEntrySQL, rateID, propertyID)
	e, err := scanRateEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RateEntry{}, fmt.Errorf("rate entry %d: %w", rateID, domain.ErrNotFound)
	}
	return e, err
}

func (r *Repo) ActiveEntries(ctx context.Context, key domain.RateKey, date time.Time) ([]domain.RateEntry, error) {
	day := domain.Day(date).Format(time.DateOnly)
	rows, err := r.db.QueryContext(ctx, activeEntriesSQL,
		key.PropertyID, key.RoomCategory, string(key.Plan), string(key.Occupancy), day, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RateEntry
	for rows.Next() {
		e, err := scanRateEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) RoomCategories(ctx context.Context, propertyID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, roomCategoriesSQL, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRateEntry(row rowScanner) (domain.RateEntry, error) {
	var (
		e          domain.RateEntry
		plan, occ  string
		tier       string
		start, end sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.PropertyID, &e.RoomCategory, &plan, &occ, &tier,
		&e.PriceMinor, &start, &end, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return domain.RateEntry{}, err
	}
	e.Plan = domain.PlanType(plan)
	e.Occupancy = domain.OccupancyType(occ)
	e.Tier = domain.PricingTier(tier)
	if start.Valid {
		d := domain.Day(start.Time)
		e.StartDate = &d
	}
	if end.Valid {
		d := domain.Day(end.Time)
		e.EndDate = &d
	}
	return e, nil
}

// ---- inventory (read-only; the booking workflow owns the writes) ----

func (r *Repo) Availability(ctx context.Context, propertyID int64, roomCategory string, from, to time.Time) ([]domain.InventoryPayload, error) {
	rows, err := r.db.QueryContext(ctx, availabilitySQL,
		propertyID, roomCategory,
		domain.Day(from).Format(time.DateOnly), domain.Day(to).Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InventoryPayload
	for rows.Next() {
		var (
			p domain.InventoryPayload
			d time.Time
		)
		if err := rows.Scan(&p.RoomCategory, &d, &p.TotalRooms, &p.Available); err != nil {
			return nil, err
		}
		p.Date = domain.Day(d)
		out = append(out, p)
	}
	return out, rows.Err()
}
