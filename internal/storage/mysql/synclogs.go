package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"staysync/internal/domain"
)

// Create inserts the run in `running` state. The conditional insert is the
// persisted no-concurrent-sync lock: it only lands when no other run for the
// same (property, channel) is still running, and a unique key on sync_id
// keeps the insert itself race-free across service instances.
func (r *Repo) Create(ctx context.Context, l domain.SyncLog) error {
	res, err := r.db.ExecContext(ctx, createSyncLogSQL,
		l.SyncID, l.PropertyID, string(l.Channel), string(l.Type), string(domain.RunRunning),
		l.StartTime.UTC(), l.TriggeredBy,
		l.PropertyID, string(l.Channel))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", l.Channel, l.Type, domain.ErrSyncInProgress)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, syncID string) (domain.SyncLog, error) {
	row := r.db.QueryRowContext(ctx, getSyncLogSQL, syncID)
	l, err := scanSyncLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncLog{}, fmt.Errorf("sync log %s: %w", syncID, domain.ErrNotFound)
	}
	return l, err
}

// Finalize transitions running → terminal exactly once. The status guard in
// the UPDATE makes it a no-op (and an ErrRunFinalized) for runs that were
// cancelled or already finalized underneath the caller.
func (r *Repo) Finalize(ctx context.Context, l domain.SyncLog) error {
	errsJSON, _ := json.Marshal(l.Errors)
	warnsJSON, _ := json.Marshal(l.Warnings)
	var end any
	if l.EndTime != nil {
		end = l.EndTime.UTC()
	}
	res, err := r.db.ExecContext(ctx, finalizeSyncLogSQL,
		string(l.Status), end,
		l.RecordsProcessed, l.SuccessfulRecords, l.FailedRecords,
		string(errsJSON), string(warnsJSON),
		l.DurationMS, l.AvgRecordMS, l.RetryCount,
		l.SyncID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync log %s: %w", l.SyncID, domain.ErrRunFinalized)
	}
	return nil
}

func (r *Repo) Cancel(ctx context.Context, syncID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, cancelSyncLogSQL, at.UTC(), syncID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync log %s: %w", syncID, domain.ErrRunFinalized)
	}
	return nil
}

// List reads history newest-first with typed filters and keyset pagination
// (start_time, sync_id), matching the idx_log_history index.
func (r *Repo) List(ctx context.Context, q domain.SyncLogQuery) (domain.SyncLogPage, error) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	where := []string{"property_id = ?"}
	args := []any{q.PropertyID}
	if q.Channel != nil {
		where = append(where, "channel = ?")
		args = append(args, string(*q.Channel))
	}
	if q.Type != nil {
		where = append(where, "sync_type = ?")
		args = append(args, string(*q.Type))
	}
	if q.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*q.Status))
	}
	if q.Cursor != nil {
		ts, id, err := decodeCursor(*q.Cursor)
		if err != nil {
			return domain.SyncLogPage{}, err
		}
		where = append(where, "(start_time < ? OR (start_time = ? AND sync_id < ?))")
		args = append(args, ts, ts, id)
	}
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx,
		listSyncLogsPrefix+strings.Join(where, " AND ")+listSyncLogsSuffix, args...)
	if err != nil {
		return domain.SyncLogPage{}, err
	}
	defer rows.Close()

	var items []domain.SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return domain.SyncLogPage{}, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return domain.SyncLogPage{}, err
	}

	page := domain.SyncLogPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		c := encodeCursor(last.StartTime, last.SyncID)
		page.NextCursor = &c
	}
	return page, nil
}

func (r *Repo) StuckRuns(ctx context.Context, cutoff time.Time) ([]domain.SyncLog, error) {
	rows, err := r.db.QueryContext(ctx, stuckRunsSQL, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func encodeCursor(t time.Time, id string) string {
	return strconv.FormatInt(t.UTC().UnixNano(), 10) + "|" + id
}

func decodeCursor(c string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(c, "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	return time.Unix(0, n).UTC(), id, nil
}

func scanSyncLog(row rowScanner) (domain.SyncLog, error) {
	var (
		l         domain.SyncLog
		channel   string
		syncType  string
		status    string
		end       sql.NullTime
		errsJSON  []byte
		warnsJSON []byte
	)
	if err := row.Scan(&l.SyncID, &l.PropertyID, &channel, &syncType, &status,
		&l.StartTime, &end,
		&l.RecordsProcessed, &l.SuccessfulRecords, &l.FailedRecords,
		&errsJSON, &warnsJSON,
		&l.TriggeredBy, &l.DurationMS, &l.AvgRecordMS, &l.RetryCount, &l.CreatedAt); err != nil {
		return domain.SyncLog{}, err
	}
	l.Channel = domain.ChannelName(channel)
	l.Type = domain.SyncType(syncType)
	l.Status = domain.RunStatus(status)
	l.StartTime = l.StartTime.UTC()
	if end.Valid {
		t := end.Time.UTC()
		l.EndTime = &t
	}
	if len(errsJSON) > 0 {
		_ = json.Unmarshal(errsJSON, &l.Errors)
	}
	if len(warnsJSON) > 0 {
		_ = json.Unmarshal(warnsJSON, &l.Warnings)
	}
	return l, nil
}
