package mysql

// ---- rate entries ----

const insertRateEntrySQL = `
INSERT INTO rate_entries
  (property_id, room_category, plan_type, occupancy_type, pricing_tier,
   price_minor, start_date, end_date, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateRateEntrySQL = `
UPDATE rate_entries
SET price_minor = ?, start_date = ?, end_date = ?, is_active = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND property_id = ?
`

// At most one active BASE entry per combination: saving a new active BASE
// retires the previous one in the same transaction.
const deactivateBaseSQL = `
UPDATE rate_entries
SET is_active = 0
WHERE property_id = ? AND room_category = ? AND plan_type = ? AND occupancy_type = ?
  AND pricing_tier = 'BASE' AND is_active = 1 AND id <> ?
`

const deactivateRateSQL = `
UPDATE rate_entries SET is_active = 0 WHERE id = ? AND property_id = ?
`

const rateExistsSQL = `
SELECT 1 FROM rate_entries WHERE id = ? AND property_id = ?
`

const rateEntryColumns = `
  id, property_id, room_category, plan_type, occupancy_type, pricing_tier,
  price_minor, start_date, end_date, is_active, created_at, updated_at
`

const getRateEntrySQL = `
SELECT` + rateEntryColumns + `
FROM rate_entries
WHERE id = ? AND property_id = ?
`

// Ordered newest-update-first so the resolver's first hit per tier is the
// tie-break winner for overlapping windows.
const activeEntriesSQL = `
SELECT` + rateEntryColumns + `
FROM rate_entries
WHERE property_id = ? AND room_category = ? AND plan_type = ? AND occupancy_type = ?
  AND is_active = 1
  AND (pricing_tier = 'BASE' OR (start_date <= ? AND end_date >= ?))
ORDER BY updated_at DESC, id DESC
`

const roomCategoriesSQL = `
SELECT DISTINCT room_category
FROM rate_entries
WHERE property_id = ? AND is_active = 1
ORDER BY room_category
`

// ---- channel configs ----

const channelColumns = `
  property_id, channel, enabled, credentials, connection_status, sync_status,
  last_sync_at, sync_error_count, updated_at
`

const getChannelSQL = `
SELECT` + channelColumns + `
FROM channel_configs
WHERE property_id = ? AND channel = ?
`

const listChannelsSQL = `
SELECT` + channelColumns + `
FROM channel_configs
WHERE property_id = ?
ORDER BY channel
`

const listEnabledPairsSQL = `
SELECT` + channelColumns + `
FROM channel_configs
WHERE enabled = 1
ORDER BY property_id, channel
`

const setSyncStatusSQL = `
UPDATE channel_configs SET sync_status = ? WHERE property_id = ? AND channel = ?
`

const setConnStatusSQL = `
UPDATE channel_configs SET connection_status = ? WHERE property_id = ? AND channel = ?
`

const finishSyncSQL = `
UPDATE channel_configs
SET sync_status = ?,
    last_sync_at = ?,
    sync_error_count = IF(? = 1, 0, sync_error_count + ?)
WHERE property_id = ? AND channel = ?
`

// ---- sync logs ----

// Conditional insert: lands only while no other run for the pair is still
// running. RowsAffected = 0 means a concurrent run holds the lock.
const createSyncLogSQL = `
INSERT INTO sync_logs
  (sync_id, property_id, channel, sync_type, status, start_time, triggered_by)
SELECT ?, ?, ?, ?, ?, ?, ?
FROM DUAL
WHERE NOT EXISTS (
  SELECT 1 FROM sync_logs
  WHERE property_id = ? AND channel = ? AND status = 'running'
)
`

const syncLogColumns = `
  sync_id, property_id, channel, sync_type, status, start_time, end_time,
  records_processed, successful_records, failed_records, errors, warnings,
  triggered_by, duration_ms, avg_record_ms, retry_count, created_at
`

const getSyncLogSQL = `
SELECT` + syncLogColumns + `
FROM sync_logs
WHERE sync_id = ?
`

// The status guard makes finalization single-shot: cancelled or already
// finalized runs are never rewritten.
const finalizeSyncLogSQL = `
UPDATE sync_logs
SET status = ?, end_time = ?,
    records_processed = ?, successful_records = ?, failed_records = ?,
    errors = ?, warnings = ?,
    duration_ms = ?, avg_record_ms = ?, retry_count = ?
WHERE sync_id = ? AND status = 'running'
`

const cancelSyncLogSQL = `
UPDATE sync_logs
SET status = 'cancelled', end_time = ?
WHERE sync_id = ? AND status = 'running'
`

const listSyncLogsPrefix = `
SELECT` + syncLogColumns + `
FROM sync_logs
WHERE `

const listSyncLogsSuffix = `
ORDER BY start_time DESC, sync_id DESC
LIMIT ?
`

const stuckRunsSQL = `
SELECT` + syncLogColumns + `
FROM sync_logs
WHERE status = 'running' AND start_time < ?
`

// ---- inventory ----

const availabilitySQL = `
SELECT room_category, stay_date, total_rooms, available_rooms
FROM room_inventory
WHERE property_id = ? AND room_category = ? AND stay_date BETWEEN ? AND ?
ORDER BY stay_date
`
