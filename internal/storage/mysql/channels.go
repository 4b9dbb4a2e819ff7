package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staysync/internal/domain"
)

func (r *Repo) GetChannel(ctx context.Context, propertyID int64, name domain.ChannelName) (domain.ChannelConfig, error) {
	row := r.db.QueryRowContext(ctx, getChannelSQL, propertyID, string(name))
	cfg, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChannelConfig{}, fmt.Errorf("channel %s for property %d: %w", name, propertyID, domain.ErrNotFound)
	}
	return cfg, err
}

func (r *Repo) ListChannels(ctx context.Context, propertyID int64) ([]domain.ChannelConfig, error) {
	rows, err := r.db.QueryContext(ctx, listChannelsSQL, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChannels(rows)
}

func (r *Repo) ListEnabledPairs(ctx context.Context) ([]domain.ChannelConfig, error) {
	rows, err := r.db.QueryContext(ctx, listEnabledPairsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChannels(rows)
}

func (r *Repo) SetSyncStatus(ctx context.Context, propertyID int64, name domain.ChannelName, s domain.SyncStatus) error {
	_, err := r.db.ExecContext(ctx, setSyncStatusSQL, string(s), propertyID, string(name))
	return err
}

func (r *Repo) SetConnectionStatus(ctx context.Context, propertyID int64, name domain.ChannelName, s domain.ConnectionStatus) error {
	_, err := r.db.ExecContext(ctx, setConnStatusSQL, string(s), propertyID, string(name))
	return err
}

func (r *Repo) FinishSync(ctx context.Context, propertyID int64, name domain.ChannelName, s domain.SyncStatus, at time.Time, resetErrors, incrementErrors bool) error {
	delta := 0
	if incrementErrors {
		delta = 1
	}
	reset := 0
	if resetErrors {
		reset = 1
	}
	// error count: 0 on full success, +1 on full failure, unchanged otherwise
	_, err := r.db.ExecContext(ctx, finishSyncSQL,
		string(s), at.UTC(), reset, delta, propertyID, string(name))
	return err
}

func collectChannels(rows *sql.Rows) ([]domain.ChannelConfig, error) {
	var out []domain.ChannelConfig
	for rows.Next() {
		cfg, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanChannel(row rowScanner) (domain.ChannelConfig, error) {
	var (
		cfg        domain.ChannelConfig
		name       string
		conn, sync string
		creds      []byte
		last       sql.NullTime
	)
	if err := row.Scan(&cfg.PropertyID, &name, &cfg.Enabled, &creds,
		&conn, &sync, &last, &cfg.SyncErrorCount, &cfg.UpdatedAt); err != nil {
		return domain.ChannelConfig{}, err
	}
	cfg.Channel = domain.ChannelName(name)
	cfg.ConnectionStatus = domain.ConnectionStatus(conn)
	cfg.SyncStatus = domain.SyncStatus(sync)
	if last.Valid {
		t := last.Time.UTC()
		cfg.LastSyncAt = &t
	}
	if len(creds) > 0 {
		if err := json.Unmarshal(creds, &cfg.Credentials); err != nil {
			return domain.ChannelConfig{}, fmt.Errorf("channel %s credentials: %w", name, err)
		}
	}
	return cfg, nil
}
