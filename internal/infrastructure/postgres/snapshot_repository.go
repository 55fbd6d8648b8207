package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"moneyhistory/internal/domain/ledger"
	"moneyhistory/internal/domain/sync"
)

// pq error code for a column that does not exist in the remote schema.
const pqUndefinedColumn = "42703"

// SnapshotRepository implements sync.RemoteStore against the user_sync_data
// table. One row per device, replaced wholesale on every upsert.
type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// EnsureSchema creates the sync table if it does not exist. The sync_code
// unique index is partial; the column is nullable and older deployments may
// lack it entirely.
func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_sync_data (
			device_id     TEXT PRIMARY KEY,
			display_name  TEXT,
			location      TEXT,
			ip_address    TEXT,
			setup_data    JSONB,
			expenses_data JSONB,
			debts_data    JSONB,
			last_sync     TIMESTAMPTZ,
			sync_code     TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS user_sync_data_sync_code_idx
			ON user_sync_data (sync_code) WHERE sync_code IS NOT NULL`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure sync schema: %w", err)
		}
	}
	return nil
}

// Upsert replaces the device's row with the snapshot. A missing sync_code
// column on the remote is reported as sync.ErrSyncCodeColumn so the caller
// can retry without the field.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *sync.Snapshot) error {
	setupData, err := json.Marshal(snap.Setup)
	if err != nil {
		return fmt.Errorf("failed to marshal budget config: %w", err)
	}
	expensesData, err := json.Marshal(snap.Expenses)
	if err != nil {
		return fmt.Errorf("failed to marshal transactions: %w", err)
	}
	debtsData, err := json.Marshal(snap.Debts)
	if err != nil {
		return fmt.Errorf("failed to marshal debts: %w", err)
	}

	if snap.SyncCode != "" {
		query := `
			INSERT INTO user_sync_data (device_id, display_name, location, ip_address, setup_data, expenses_data, debts_data, last_sync, sync_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (device_id) DO UPDATE SET
				display_name  = EXCLUDED.display_name,
				location      = EXCLUDED.location,
				ip_address    = EXCLUDED.ip_address,
				setup_data    = EXCLUDED.setup_data,
				expenses_data = EXCLUDED.expenses_data,
				debts_data    = EXCLUDED.debts_data,
				last_sync     = EXCLUDED.last_sync,
				sync_code     = EXCLUDED.sync_code
		`
		_, err = r.db.ExecContext(ctx, query,
			snap.DeviceID, snap.DisplayName, snap.Location, snap.IPAddress,
			setupData, expensesData, debtsData, snap.LastSync, snap.SyncCode,
		)
	} else {
		query := `
			INSERT INTO user_sync_data (device_id, display_name, location, ip_address, setup_data, expenses_data, debts_data, last_sync)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (device_id) DO UPDATE SET
				display_name  = EXCLUDED.display_name,
				location      = EXCLUDED.location,
				ip_address    = EXCLUDED.ip_address,
				setup_data    = EXCLUDED.setup_data,
				expenses_data = EXCLUDED.expenses_data,
				debts_data    = EXCLUDED.debts_data,
				last_sync     = EXCLUDED.last_sync
		`
		_, err = r.db.ExecContext(ctx, query,
			snap.DeviceID, snap.DisplayName, snap.Location, snap.IPAddress,
			setupData, expensesData, debtsData, snap.LastSync,
		)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUndefinedColumn {
			return fmt.Errorf("upsert rejected: %w", sync.ErrSyncCodeColumn)
		}
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// FindByCode fetches the unique row carrying a sync code.
func (r *SnapshotRepository) FindByCode(ctx context.Context, code string) (*sync.Snapshot, error) {
	query := `
		SELECT device_id, display_name, location, ip_address, setup_data, expenses_data, debts_data, last_sync, sync_code
		FROM user_sync_data
		WHERE sync_code = $1
	`

	var snap sync.Snapshot
	var displayName, location, ipAddress, syncCode sql.NullString
	var setupData, expensesData, debtsData []byte
	var lastSync sql.NullTime

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&snap.DeviceID, &displayName, &location, &ipAddress,
		&setupData, &expensesData, &debtsData, &lastSync, &syncCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sync.ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}

	snap.DisplayName = displayName.String
	snap.Location = location.String
	snap.IPAddress = ipAddress.String
	snap.SyncCode = syncCode.String
	if lastSync.Valid {
		snap.LastSync = lastSync.Time.UTC()
	}

	if len(setupData) > 0 && string(setupData) != "null" {
		var cfg ledger.BudgetConfig
		if err := json.Unmarshal(setupData, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode budget config: %w", err)
		}
		snap.Setup = &cfg
	}
	if len(expensesData) > 0 && string(expensesData) != "null" {
		if err := json.Unmarshal(expensesData, &snap.Expenses); err != nil {
			return nil, fmt.Errorf("failed to decode transactions: %w", err)
		}
	}
	if len(debtsData) > 0 && string(debtsData) != "null" {
		if err := json.Unmarshal(debtsData, &snap.Debts); err != nil {
			return nil, fmt.Errorf("failed to decode debts: %w", err)
		}
	}
	return &snap, nil
}

// LastSyncTimes returns the most recent sync per device, newest first.
// Used by the status endpoint to show which devices share a code.
func (r *SnapshotRepository) LastSyncTimes(ctx context.Context, code string) (map[string]time.Time, error) {
	query := `
		SELECT device_id, last_sync
		FROM user_sync_data
		WHERE sync_code = $1 OR device_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var device string
		var last sql.NullTime
		if err := rows.Scan(&device, &last); err != nil {
			return nil, fmt.Errorf("failed to scan sync time: %w", err)
		}
		if last.Valid {
			out[device] = last.Time.UTC()
		}
	}
	return out, rows.Err()
}
