package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"moneyhistory/internal/domain/ledger"
)

// Snapshot is the full per-device payload mirrored to the remote row store.
// The orchestrator always sends the whole thing; the remote replaces the
// entire row on conflict.
type Snapshot struct {
	DeviceID    string               `json:"deviceId"`
	DisplayName string               `json:"displayName"`
	Location    string               `json:"location"`
	IPAddress   string               `json:"ipAddress"`
	Setup       *ledger.BudgetConfig `json:"setupData"`
	Expenses    []ledger.Transaction `json:"expensesData"`
	Debts       []ledger.Debt        `json:"debtsData"`
	LastSync    time.Time            `json:"lastSync"`
	SyncCode    string               `json:"syncCode,omitempty"`
}

// fingerprintPayload covers only the user data. Identity, location, and
// timestamps are excluded so that re-resolving an IP does not look like a
// change worth pushing.
type fingerprintPayload struct {
	Setup       *ledger.BudgetConfig `json:"setupData"`
	Expenses    []ledger.Transaction `json:"expensesData"`
	Debts       []ledger.Debt        `json:"debtsData"`
	DisplayName string               `json:"displayName"`
}

// Fingerprint returns a deterministic serialization of the snapshot's user
// data, used to coalesce redundant sync triggers.
func (s *Snapshot) Fingerprint() (string, error) {
	raw, err := json.Marshal(fingerprintPayload{
		Setup:       s.Setup,
		Expenses:    s.Expenses,
		Debts:       s.Debts,
		DisplayName: s.DisplayName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint snapshot: %w", err)
	}
	return string(raw), nil
}
