package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"moneyhistory/internal/domain/ledger"
	"moneyhistory/internal/localstore"
	"moneyhistory/internal/shared/config"
)

var (
	syncMeter       = otel.Meter("moneyhistory/sync")
	syncDuration, _ = syncMeter.Float64Histogram("sync.duration", metric.WithDescription("Sync attempt duration in seconds"), metric.WithUnit("s"))
	syncTotal, _    = syncMeter.Int64Counter("sync.total", metric.WithDescription("Total sync attempts by status"))
)

var (
	// ErrSyncCodeColumn is returned by the remote store when the schema
	// lacks the optional sync_code column. The orchestrator persists a
	// compatibility flag and retries without the field.
	ErrSyncCodeColumn = errors.New("remote schema has no sync_code column")

	// ErrCodeNotFound is returned by a restore lookup that matched no row.
	ErrCodeNotFound = errors.New("no snapshot found for sync code")
)

// RemoteStore is the remote row keyed by device id. Upsert replaces the
// whole row; there is no field-level merge.
type RemoteStore interface {
	Upsert(ctx context.Context, snap *Snapshot) error
	FindByCode(ctx context.Context, code string) (*Snapshot, error)
}

// LocationResolver yields a best-effort location string and public IP.
// Implementations never return errors, only empty strings.
type LocationResolver interface {
	Resolve(ctx context.Context) (location, ip string)
}

// Enricher posts a successfully synced snapshot to the secondary enrichment
// endpoint. Fire-and-forget; failures are logged inside.
type Enricher interface {
	Send(ctx context.Context, snap *Snapshot)
}

const (
	StatusSynced         = "synced"
	StatusUpToDate       = "up-to-date"
	StatusDeferred       = "deferred"
	StatusRefused        = "refused"
	StatusFailed         = "failed"
	StatusAlreadySyncing = "already-syncing"
	StatusDisabled       = "disabled"
)

const (
	TriggerDebounce = "debounce"
	TriggerOnline   = "online"
	TriggerVisible  = "visible"
	TriggerHourly   = "hourly"
	TriggerManual   = "manual"
)

// Result reports the outcome of one sync attempt.
type Result struct {
	Status   string   `json:"status"`
	Trigger  string   `json:"trigger"`
	Attempts int      `json:"attempts"`
	TxCount  int      `json:"txCount"`
	Location string   `json:"location,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Orchestrator mirrors the local ledger to the remote row store. Local
// writes never wait on it; it only ever reads the store and pushes
// snapshots. A single goroutine owns the debounce timer and the hourly
// ticker, syncs run inline on that goroutine under the session's
// single-flight lock.
type Orchestrator struct {
	cfg     config.SyncConfig
	store   *localstore.Store
	ledger  *ledger.Service
	session *Session
	guard   *Guard
	remote  RemoteStore
	geo     LocationResolver
	enrich  Enricher

	changeCh chan struct{}
	forcedCh chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewOrchestrator wires the sync loop. geo and enrich may be nil; location
// and enrichment are then skipped.
func NewOrchestrator(cfg config.SyncConfig, store *localstore.Store, svc *ledger.Service, session *Session, remote RemoteStore, geo LocationResolver, enrich Enricher) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		ledger:   svc,
		session:  session,
		guard:    &Guard{},
		remote:   remote,
		geo:      geo,
		enrich:   enrich,
		changeCh: make(chan struct{}, 1),
		forcedCh: make(chan string, 4),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Guard exposes the reconciliation guard, mainly for the status endpoint.
func (o *Orchestrator) Guard() *Guard { return o.guard }

// Start primes the guard from the store and launches the run loop.
func (o *Orchestrator) Start() error {
	rev, err := o.store.Revision()
	if err != nil {
		return fmt.Errorf("failed to read store revision: %w", err)
	}
	txs, err := o.ledger.Transactions()
	if err != nil {
		return fmt.Errorf("failed to read transactions: %w", err)
	}
	o.guard.Observe(rev, len(txs))

	o.wg.Add(1)
	go o.run()
	log.Printf("Sync orchestrator started (debounce=%s, hourly=%s)", o.cfg.Debounce, o.cfg.HourlyInterval)
	return nil
}

// NotifyChange signals that local data changed. Coalesced: repeated calls
// within the debounce window produce one sync.
func (o *Orchestrator) NotifyChange() {
	select {
	case o.changeCh <- struct{}{}:
	default:
	}
}

// NotifyOnline signals that connectivity was regained.
func (o *Orchestrator) NotifyOnline() { o.notifyForced(TriggerOnline) }

// NotifyVisible signals that the app came to the foreground.
func (o *Orchestrator) NotifyVisible() { o.notifyForced(TriggerVisible) }

func (o *Orchestrator) notifyForced(trigger string) {
	select {
	case o.forcedCh <- trigger:
	default:
		log.Printf("Dropping %s trigger, queue full", trigger)
	}
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	debounce := time.NewTimer(o.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	hourly := time.NewTicker(o.cfg.HourlyInterval)
	defer hourly.Stop()

	for {
		select {
		case <-o.ctx.Done():
			log.Println("Sync orchestrator shutting down")
			return

		case <-o.changeCh:
			// Acknowledge the change so the guard knows this view is
			// current, then restart the window so a burst of edits
			// produces a single push.
			o.observeStore()
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(o.cfg.Debounce)

		case <-debounce.C:
			if res := o.syncSilent(TriggerDebounce); res != nil && res.Status == StatusDeferred {
				debounce.Reset(o.cfg.Debounce)
			}

		case trigger := <-o.forcedCh:
			o.maybeScheduled(trigger, o.cfg.ForcedMinGap)

		case <-hourly.C:
			o.maybeScheduled(TriggerHourly, o.cfg.HourlyInterval)
		}
	}
}

// observeStore refreshes the guard's cached view from the store. Called when
// a change notification arrives; writes that bypass notification (a restore,
// another process) stay ahead of the cache and make the guard defer.
func (o *Orchestrator) observeStore() {
	rev, err := o.store.Revision()
	if err != nil {
		log.Printf("Failed to read store revision: %v", err)
		return
	}
	txs, err := o.ledger.Transactions()
	if err != nil {
		log.Printf("Failed to read transactions: %v", err)
		return
	}
	o.guard.Observe(rev, len(txs))
}

// maybeScheduled runs a silent sync only if at least minGap has elapsed
// since the last scheduled sync.
func (o *Orchestrator) maybeScheduled(trigger string, minGap time.Duration) {
	raw, ok, err := o.store.Get(localstore.KeyLastHourlySync)
	if err != nil {
		log.Printf("Failed to read last scheduled sync time: %v", err)
	}
	if ok && err == nil {
		last, perr := time.Parse(time.RFC3339, raw)
		if perr == nil && o.now().Sub(last) < minGap {
			return
		}
	}

	res := o.syncSilent(trigger)
	if res == nil {
		return
	}
	switch res.Status {
	case StatusSynced, StatusUpToDate:
		if err := o.store.Set(localstore.KeyLastHourlySync, o.now().Format(time.RFC3339)); err != nil {
			log.Printf("Failed to record scheduled sync time: %v", err)
		}
	}
}

// syncSilent runs a background sync. A sync already in flight makes it a
// no-op; failures are logged, never surfaced.
func (o *Orchestrator) syncSilent(trigger string) *Result {
	res, err := o.Sync(o.ctx, trigger, false)
	if err != nil {
		log.Printf("Background sync (%s) failed: %v", trigger, err)
	}
	return res
}

// SyncNow is the user-initiated path. If a sync is already running it waits
// briefly for it to finish and reports that instead of queueing a second
// pass.
func (o *Orchestrator) SyncNow(ctx context.Context) (*Result, error) {
	if o.session.Syncing() {
		deadline := time.After(2 * time.Second)
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for o.session.Syncing() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-deadline:
				return &Result{Status: StatusAlreadySyncing, Trigger: TriggerManual}, nil
			case <-tick.C:
			}
		}
		return &Result{Status: StatusAlreadySyncing, Trigger: TriggerManual}, nil
	}
	return o.Sync(ctx, TriggerManual, true)
}

// Sync runs one full sync pass under the single-flight lock. Manual syncs
// push even when the fingerprint is unchanged.
func (o *Orchestrator) Sync(ctx context.Context, trigger string, manual bool) (*Result, error) {
	if !o.cfg.Enabled {
		return &Result{Status: StatusDisabled, Trigger: trigger}, nil
	}
	if !o.session.TryBegin() {
		return &Result{Status: StatusAlreadySyncing, Trigger: trigger}, nil
	}
	defer o.session.End()

	start := time.Now()
	res, err := o.doSync(ctx, trigger, manual)
	syncDuration.Record(ctx, time.Since(start).Seconds())
	syncTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", res.Status),
		attribute.String("trigger", trigger),
	))
	return res, err
}

func (o *Orchestrator) doSync(ctx context.Context, trigger string, manual bool) (*Result, error) {
	res := &Result{Status: StatusFailed, Trigger: trigger}

	if err := o.session.EnsureIdentity(); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("failed to ensure sync identity: %w", err)
	}

	// Re-read everything right before the push. The store is authoritative;
	// a cached view that fell behind must never overwrite it.
	rev, err := o.store.Revision()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("failed to read store revision: %w", err)
	}
	txs, err := o.ledger.Transactions()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("failed to read transactions: %w", err)
	}
	res.TxCount = len(txs)

	switch o.guard.Check(rev, len(txs), o.session.LastSyncedTxCount()) {
	case VerdictRehydrate:
		o.guard.Observe(rev, len(txs))
		log.Printf("Local view behind store (rev %d, %d transactions), rehydrated and deferring sync", rev, len(txs))
		res.Status = StatusDeferred
		return res, nil
	case VerdictRefuseEmpty:
		log.Printf("Refusing to sync empty ledger over a non-empty remote payload")
		res.Status = StatusRefused
		return res, nil
	}

	budget, err := o.ledger.Budget()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("failed to read budget config: %w", err)
	}
	debts, err := o.ledger.Debts()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("failed to read debts: %w", err)
	}

	snap := &Snapshot{
		DeviceID:    o.session.DeviceID(),
		DisplayName: o.ledger.DisplayName(),
		Setup:       budget,
		Expenses:    txs,
		Debts:       debts,
		LastSync:    o.now().UTC(),
		SyncCode:    o.session.SyncCode(),
	}

	fp, err := snap.Fingerprint()
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, err
	}
	if !manual && fp == o.session.LastFingerprint() {
		res.Status = StatusUpToDate
		return res, nil
	}

	if o.geo != nil {
		snap.Location, snap.IPAddress = o.geo.Resolve(ctx)
	}
	res.Location = snap.Location

	if !o.session.SyncCodeSupported() {
		snap.SyncCode = ""
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			backoff := o.cfg.RetryBackoff * time.Duration(attempt-1)
			select {
			case <-ctx.Done():
				res.Errors = append(res.Errors, ctx.Err().Error())
				return res, ctx.Err()
			case <-time.After(backoff):
			}
		}
		res.Attempts = attempt

		err := o.remote.Upsert(ctx, snap)
		if errors.Is(err, ErrSyncCodeColumn) && snap.SyncCode != "" {
			// Remote predates the sync_code column. Remember that and
			// retry the same attempt without the field.
			log.Printf("Remote schema has no sync_code column, disabling the field")
			if ferr := o.session.MarkSyncCodeUnsupported(); ferr != nil {
				log.Printf("Failed to persist sync_code compatibility flag: %v", ferr)
			}
			snap.SyncCode = ""
			err = o.remote.Upsert(ctx, snap)
		}
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		log.Printf("Sync attempt %d/%d failed: %v", attempt, o.cfg.MaxRetries, err)
	}
	if lastErr != nil {
		res.Errors = append(res.Errors, lastErr.Error())
		return res, fmt.Errorf("sync failed after %d attempts: %w", res.Attempts, lastErr)
	}

	if err := o.session.RecordSynced(fp, len(txs)); err != nil {
		log.Printf("Failed to record synced payload: %v", err)
	}
	o.guard.Observe(rev, len(txs))

	if o.enrich != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			ectx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			o.enrich.Send(ectx, snap)
		}()
	}

	log.Printf("Sync (%s) completed: %d transactions, %d debts, attempt %d", trigger, len(txs), len(debts), res.Attempts)
	res.Status = StatusSynced
	return res, nil
}

// Shutdown stops the run loop and waits for in-flight work up to timeout.
func (o *Orchestrator) Shutdown(timeout time.Duration) error {
	log.Println("Sync orchestrator: initiating graceful shutdown")
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Sync orchestrator: shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("sync orchestrator shutdown timed out after %s", timeout)
	}
}
