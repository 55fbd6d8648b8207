package sync

import "sync"

// Verdict is the guard's decision for a pending sync.
type Verdict int

const (
	// VerdictProceed means the cached view matches the store.
	VerdictProceed Verdict = iota
	// VerdictRehydrate means the store moved past the cached view. The
	// caller must replace its cache with the fresh read and defer the sync
	// to the next cycle.
	VerdictRehydrate
	// VerdictRefuseEmpty means the local ledger is empty while the last
	// synced payload was not. Pushing would propagate a wipe.
	VerdictRefuseEmpty
)

func (v Verdict) String() string {
	switch v {
	case VerdictRehydrate:
		return "rehydrate"
	case VerdictRefuseEmpty:
		return "refuse-empty"
	default:
		return "proceed"
	}
}

// Guard protects a sync against pushing a stale or suspicious view of the
// ledger. It tracks the revision and transaction count the orchestrator last
// observed; immediately before every sync the store is re-read and compared.
//
// The revision counter is the primary signal since it moves on every write,
// including edits that keep the record count unchanged. The count comparison
// is kept as a belt alongside it.
type Guard struct {
	mu       sync.Mutex
	revision int64
	txCount  int
}

// Observe records the view the orchestrator currently holds. Called after
// startup, after rehydration, and after every local mutation it processes.
func (g *Guard) Observe(revision int64, txCount int) {
	g.mu.Lock()
	g.revision = revision
	g.txCount = txCount
	g.mu.Unlock()
}

// Check compares a fresh store read against the cached view and the last
// synced payload size.
func (g *Guard) Check(storeRevision int64, freshTxCount, lastSyncedTxCount int) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if storeRevision > g.revision || freshTxCount > g.txCount {
		return VerdictRehydrate
	}
	if freshTxCount == 0 && lastSyncedTxCount > 0 {
		return VerdictRefuseEmpty
	}
	return VerdictProceed
}

// View returns the cached revision and transaction count.
func (g *Guard) View() (int64, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revision, g.txCount
}
