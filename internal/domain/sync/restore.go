package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"moneyhistory/internal/localstore"
)

// ErrInvalidCode is returned for codes that cannot be a sync code after
// normalization.
var ErrInvalidCode = errors.New("invalid sync code")

// minCodeLength is the shortest normalized code worth sending to the
// remote. "MH-" plus at least one character.
const minCodeLength = 4

// NormalizeCode canonicalizes a human-entered sync code: whitespace is
// stripped and letters uppercased, so " mh-ab c9kq " matches "MH-ABC9KQ".
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if len(code) < minCodeLength {
		return "", ErrInvalidCode
	}
	return code, nil
}

// Restorer pulls a remote snapshot down by sync code and overwrites the
// local ledger with it.
type Restorer struct {
	store   *localstore.Store
	session *Session
	remote  RemoteStore
}

func NewRestorer(store *localstore.Store, session *Session, remote RemoteStore) *Restorer {
	return &Restorer{store: store, session: session, remote: remote}
}

// Restore fetches the row for a sync code and applies it. Each field the
// snapshot carries overwrites the local copy; fields the snapshot lacks are
// left untouched, so an older remote shape cannot erase local data. On any
// failure nothing is modified.
func (r *Restorer) Restore(ctx context.Context, rawCode string) (*Snapshot, error) {
	code, err := NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}

	snap, err := r.remote.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up sync code: %w", err)
	}

	if snap.Setup != nil {
		if err := r.store.SetJSON(localstore.KeySetup, snap.Setup); err != nil {
			return nil, fmt.Errorf("failed to restore budget config: %w", err)
		}
	}
	if snap.Expenses != nil {
		if err := r.store.SetJSON(localstore.KeyExpenses, snap.Expenses); err != nil {
			return nil, fmt.Errorf("failed to restore transactions: %w", err)
		}
	}
	if snap.Debts != nil {
		if err := r.store.SetJSON(localstore.KeyDebts, snap.Debts); err != nil {
			return nil, fmt.Errorf("failed to restore debts: %w", err)
		}
	}
	if snap.DisplayName != "" {
		if err := r.store.Set(localstore.KeyDisplayName, snap.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to restore display name: %w", err)
		}
	}

	// Adopt the row's identity so future syncs keep updating it.
	if err := r.session.AdoptIdentity(snap.DeviceID, code); err != nil {
		return nil, err
	}

	// Any cached view is stale now; the next sync pass rehydrates from the
	// store instead of pushing.
	if _, err := r.store.BumpRevision(); err != nil {
		return nil, fmt.Errorf("failed to bump revision after restore: %w", err)
	}

	log.Printf("Restored snapshot for code %s: %d transactions, %d debts", code, len(snap.Expenses), len(snap.Debts))
	return snap, nil
}
