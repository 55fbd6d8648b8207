package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"moneyhistory/internal/domain/ledger"
	"moneyhistory/internal/localstore"
	"moneyhistory/internal/shared/config"
)

type mockRemote struct {
	UpsertFunc     func(ctx context.Context, snap *Snapshot) error
	FindByCodeFunc func(ctx context.Context, code string) (*Snapshot, error)

	mu      stdsync.Mutex
	upserts []Snapshot
}

func (m *mockRemote) Upsert(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	m.upserts = append(m.upserts, *snap)
	m.mu.Unlock()
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, snap)
	}
	return nil
}

func (m *mockRemote) FindByCode(ctx context.Context, code string) (*Snapshot, error) {
	if m.FindByCodeFunc != nil {
		return m.FindByCodeFunc(ctx, code)
	}
	return nil, ErrCodeNotFound
}

func (m *mockRemote) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

func (m *mockRemote) last() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts[len(m.upserts)-1]
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Enabled:        true,
		Debounce:       50 * time.Millisecond,
		HourlyInterval: time.Hour,
		ForcedMinGap:   5 * time.Minute,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, remote RemoteStore) (*Orchestrator, *ledger.Service, *localstore.Store) {
	t.Helper()
	store := newTestStore(t)
	svc := ledger.NewService(store)
	session := newTestSession(t, store)
	o := NewOrchestrator(testSyncConfig(), store, svc, session, remote, nil, nil)
	return o, svc, store
}

func primeGuard(t *testing.T, o *Orchestrator, store *localstore.Store, svc *ledger.Service) {
	t.Helper()
	rev, err := store.Revision()
	if err != nil {
		t.Fatalf("Revision() failed: %v", err)
	}
	txs, err := svc.Transactions()
	if err != nil {
		t.Fatalf("Transactions() failed: %v", err)
	}
	o.Guard().Observe(rev, len(txs))
}

func addTx(t *testing.T, svc *ledger.Service, title string) {
	t.Helper()
	if _, err := svc.AddTransaction(ledger.AddTransactionParams{
		Title: title, Amount: "100", Type: ledger.TypeExpense,
	}); err != nil {
		t.Fatalf("AddTransaction(%s) failed: %v", title, err)
	}
}

func TestSyncPushesSnapshot(t *testing.T) {
	remote := &mockRemote{}
	o, svc, store := newTestOrchestrator(t, remote)

	svc.SetDisplayName("Noman")
	addTx(t, svc, "Lunch")
	primeGuard(t, o, store, svc)

	res, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if res.Status != StatusSynced || res.Attempts != 1 {
		t.Fatalf("result = %+v, want synced on first attempt", res)
	}
	if remote.count() != 1 {
		t.Fatalf("remote received %d upserts, want 1", remote.count())
	}

	snap := remote.last()
	if snap.DeviceID == "" || snap.SyncCode == "" {
		t.Error("snapshot pushed without identity")
	}
	if len(snap.Expenses) != 1 || snap.DisplayName != "Noman" {
		t.Errorf("snapshot = %d expenses, name %q", len(snap.Expenses), snap.DisplayName)
	}
	if o.session.LastFingerprint() == "" || o.session.LastSyncedTxCount() != 1 {
		t.Error("sync record not updated after push")
	}

	// Nothing changed: a silent pass coalesces instead of re-pushing.
	res, err = o.Sync(context.Background(), TriggerDebounce, false)
	if err != nil {
		t.Fatalf("second Sync() failed: %v", err)
	}
	if res.Status != StatusUpToDate {
		t.Errorf("second sync status = %s, want up-to-date", res.Status)
	}
	if remote.count() != 1 {
		t.Errorf("redundant push: remote received %d upserts", remote.count())
	}
}

// A cached view that fell behind the store must rehydrate and defer, never
// push. After the deferral the cached count equals the persisted count.
func TestSyncDefersWhenViewIsStale(t *testing.T) {
	remote := &mockRemote{}
	o, svc, store := newTestOrchestrator(t, remote)

	o.Guard().Observe(0, 0)
	addTx(t, svc, "One")
	addTx(t, svc, "Two")

	res, err := o.Sync(context.Background(), TriggerDebounce, false)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Status != StatusDeferred {
		t.Fatalf("status = %s, want deferred", res.Status)
	}
	if remote.count() != 0 {
		t.Fatal("stale view was pushed to the remote")
	}

	rev, _ := store.Revision()
	gotRev, gotCount := o.Guard().View()
	if gotRev != rev || gotCount != 2 {
		t.Errorf("guard view = (%d, %d), want (%d, 2)", gotRev, gotCount, rev)
	}

	// The next cycle goes through.
	res, err = o.Sync(context.Background(), TriggerDebounce, false)
	if err != nil {
		t.Fatalf("follow-up Sync() failed: %v", err)
	}
	if res.Status != StatusSynced || remote.count() != 1 {
		t.Errorf("follow-up = %s with %d upserts, want synced with 1", res.Status, remote.count())
	}
}

func TestSyncRefusesEmptyOverNonEmpty(t *testing.T) {
	remote := &mockRemote{}
	o, svc, store := newTestOrchestrator(t, remote)

	if err := o.session.RecordSynced("old-fingerprint", 3); err != nil {
		t.Fatalf("RecordSynced() failed: %v", err)
	}
	primeGuard(t, o, store, svc)

	res, err := o.Sync(context.Background(), TriggerHourly, false)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Status != StatusRefused {
		t.Errorf("status = %s, want refused", res.Status)
	}
	if remote.count() != 0 {
		t.Error("empty ledger was pushed over a non-empty payload")
	}
}

func TestSyncRetriesTransientFailure(t *testing.T) {
	calls := 0
	remote := &mockRemote{}
	remote.UpsertFunc = func(ctx context.Context, snap *Snapshot) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	o, svc, store := newTestOrchestrator(t, remote)
	addTx(t, svc, "Lunch")
	primeGuard(t, o, store, svc)

	res, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if res.Status != StatusSynced || res.Attempts != 2 {
		t.Errorf("result = %+v, want synced on attempt 2", res)
	}
}

func TestSyncFailureKeepsLocalData(t *testing.T) {
	remote := &mockRemote{}
	remote.UpsertFunc = func(ctx context.Context, snap *Snapshot) error {
		return errors.New("remote down")
	}
	o, svc, store := newTestOrchestrator(t, remote)
	addTx(t, svc, "Lunch")
	primeGuard(t, o, store, svc)

	res, err := o.SyncNow(context.Background())
	if err == nil {
		t.Fatal("SyncNow() succeeded against a dead remote")
	}
	if res.Status != StatusFailed || res.Attempts != 2 {
		t.Errorf("result = %+v, want failed after 2 attempts", res)
	}
	if len(res.Errors) == 0 {
		t.Error("failed result carries no error detail")
	}

	// The ledger is untouched and no fingerprint was recorded.
	txs, _ := svc.Transactions()
	if len(txs) != 1 {
		t.Errorf("local data changed by failed sync: %d transactions", len(txs))
	}
	if o.session.LastFingerprint() != "" {
		t.Error("fingerprint recorded for a failed push")
	}
}

func TestSyncCodeColumnFallback(t *testing.T) {
	remote := &mockRemote{}
	remote.UpsertFunc = func(ctx context.Context, snap *Snapshot) error {
		if snap.SyncCode != "" {
			return fmt.Errorf("upsert rejected: %w", ErrSyncCodeColumn)
		}
		return nil
	}
	o, svc, store := newTestOrchestrator(t, remote)
	addTx(t, svc, "Lunch")
	primeGuard(t, o, store, svc)

	res, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if res.Status != StatusSynced {
		t.Fatalf("status = %s, want synced", res.Status)
	}
	if remote.last().SyncCode != "" {
		t.Error("retry still carried the sync_code field")
	}
	if o.session.SyncCodeSupported() {
		t.Error("compatibility flag not persisted after 42703")
	}

	// Subsequent syncs never send the field again.
	addTx(t, svc, "Dinner")
	primeGuard(t, o, store, svc)
	if _, err := o.SyncNow(context.Background()); err != nil {
		t.Fatalf("second SyncNow() failed: %v", err)
	}
	if remote.last().SyncCode != "" {
		t.Error("sync_code sent despite persisted compatibility flag")
	}
}

func TestSyncDisabled(t *testing.T) {
	remote := &mockRemote{}
	store := newTestStore(t)
	svc := ledger.NewService(store)
	session := newTestSession(t, store)
	cfg := testSyncConfig()
	cfg.Enabled = false
	o := NewOrchestrator(cfg, store, svc, session, remote, nil, nil)

	res, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if res.Status != StatusDisabled || remote.count() != 0 {
		t.Errorf("result = %+v with %d upserts, want disabled and none", res, remote.count())
	}
}

func TestSyncNowWhileInFlight(t *testing.T) {
	remote := &mockRemote{}
	o, _, _ := newTestOrchestrator(t, remote)

	if !o.session.TryBegin() {
		t.Fatal("TryBegin() failed")
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		o.session.End()
	}()

	res, err := o.SyncNow(context.Background())
	if err != nil {
		t.Fatalf("SyncNow() failed: %v", err)
	}
	if res.Status != StatusAlreadySyncing {
		t.Errorf("status = %s, want already-syncing", res.Status)
	}
	if remote.count() != 0 {
		t.Error("a second sync pass ran while one was in flight")
	}
}

// Forced triggers (online regained, app foregrounded) only run when enough
// time has passed since the last scheduled sync.
func TestForcedTriggerGate(t *testing.T) {
	remote := &mockRemote{}
	o, svc, store := newTestOrchestrator(t, remote)
	addTx(t, svc, "Lunch")
	primeGuard(t, o, store, svc)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return base }

	// Two minutes after the last scheduled sync: inside the gap, skipped.
	store.Set(localstore.KeyLastHourlySync, base.Add(-2*time.Minute).Format(time.RFC3339))
	o.maybeScheduled(TriggerOnline, o.cfg.ForcedMinGap)
	if remote.count() != 0 {
		t.Fatalf("forced trigger ran inside the minimum gap: %d upserts", remote.count())
	}

	// Six minutes after: outside the gap, runs and records the new time.
	store.Set(localstore.KeyLastHourlySync, base.Add(-6*time.Minute).Format(time.RFC3339))
	o.maybeScheduled(TriggerVisible, o.cfg.ForcedMinGap)
	if remote.count() != 1 {
		t.Fatalf("forced trigger outside the gap pushed %d times, want 1", remote.count())
	}
	raw, ok, _ := store.Get(localstore.KeyLastHourlySync)
	if !ok || raw != base.Format(time.RFC3339) {
		t.Errorf("scheduled sync time = %q, want %q", raw, base.Format(time.RFC3339))
	}
}

// The hourly ticker runs on a fresh store (no recorded time) and is gated by
// the full interval afterwards.
func TestHourlyGate(t *testing.T) {
	remote := &mockRemote{}
	o, svc, store := newTestOrchestrator(t, remote)
	addTx(t, svc, "Lunch")
	primeGuard(t, o, store, svc)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return base }

	o.maybeScheduled(TriggerHourly, o.cfg.HourlyInterval)
	if remote.count() != 1 {
		t.Fatalf("hourly sync with no prior record pushed %d times, want 1", remote.count())
	}

	// Thirty minutes in, still gated even with fresh data.
	addTx(t, svc, "Dinner")
	primeGuard(t, o, store, svc)
	o.now = func() time.Time { return base.Add(30 * time.Minute) }
	o.maybeScheduled(TriggerHourly, o.cfg.HourlyInterval)
	if remote.count() != 1 {
		t.Fatalf("hourly sync ran inside the interval: %d upserts", remote.count())
	}

	// Past the interval it goes through again.
	o.now = func() time.Time { return base.Add(61 * time.Minute) }
	o.maybeScheduled(TriggerHourly, o.cfg.HourlyInterval)
	if remote.count() != 2 {
		t.Errorf("hourly sync past the interval pushed %d times, want 2", remote.count())
	}
}

// End to end through the run loop: a burst of mutations produces one
// debounced push containing all of them.
func TestDebouncedLoopCoalesces(t *testing.T) {
	remote := &mockRemote{}
	o, svc, _ := newTestOrchestrator(t, remote)
	svc.SetOnMutate(o.NotifyChange)

	if err := o.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer func() {
		if err := o.Shutdown(2 * time.Second); err != nil {
			t.Errorf("Shutdown() failed: %v", err)
		}
	}()

	addTx(t, svc, "One")
	addTx(t, svc, "Two")
	addTx(t, svc, "Three")

	deadline := time.Now().Add(3 * time.Second)
	for remote.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if remote.count() == 0 {
		t.Fatal("debounced sync never fired")
	}

	// Let any straggler debounce settle, then check coalescing.
	time.Sleep(150 * time.Millisecond)
	if got := remote.count(); got != 1 {
		t.Errorf("burst produced %d pushes, want 1", got)
	}
	if snap := remote.last(); len(snap.Expenses) != 3 {
		t.Errorf("pushed snapshot has %d transactions, want 3", len(snap.Expenses))
	}
}
