package http

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"moneyhistory/internal/domain/ledger"
	"moneyhistory/internal/domain/sync"
	"moneyhistory/internal/localstore"
	"moneyhistory/internal/shared/config"
)

type fakeRemote struct {
	UpsertFunc     func(ctx context.Context, snap *sync.Snapshot) error
	FindByCodeFunc func(ctx context.Context, code string) (*sync.Snapshot, error)
	upserts        int
}

func (f *fakeRemote) Upsert(ctx context.Context, snap *sync.Snapshot) error {
	f.upserts++
	if f.UpsertFunc != nil {
		return f.UpsertFunc(ctx, snap)
	}
	return nil
}

func (f *fakeRemote) FindByCode(ctx context.Context, code string) (*sync.Snapshot, error) {
	if f.FindByCodeFunc != nil {
		return f.FindByCodeFunc(ctx, code)
	}
	return nil, sync.ErrCodeNotFound
}

type fakeCoords struct {
	lat, lon float64
	set      bool
}

func (f *fakeCoords) SetCoordinates(lat, lon float64) {
	f.lat, f.lon, f.set = lat, lon, true
}

func newSyncTestMux(t *testing.T, remote sync.RemoteStore) (*http.ServeMux, *ledger.Service, *fakeCoords) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := ledger.NewService(store)
	session, err := sync.NewSession(store)
	if err != nil {
		t.Fatalf("NewSession() failed: %v", err)
	}
	cfg := config.SyncConfig{
		Enabled: true, Debounce: 50 * time.Millisecond,
		HourlyInterval: time.Hour, ForcedMinGap: 5 * time.Minute,
		MaxRetries: 2, RetryBackoff: time.Millisecond,
	}
	orch := sync.NewOrchestrator(cfg, store, svc, session, remote, nil, nil)
	restorer := sync.NewRestorer(store, session, remote)
	coords := &fakeCoords{}
	sh := NewSyncHandler(orch, session, restorer, coords, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sync/now", sh.HandleSyncNow)
	mux.HandleFunc("/api/sync/status", sh.HandleStatus)
	mux.HandleFunc("/api/sync/restore", sh.HandleRestore)
	mux.HandleFunc("/api/events/online", sh.HandleOnlineEvent)
	mux.HandleFunc("/api/events/visible", sh.HandleVisibleEvent)
	mux.HandleFunc("/api/events/location", sh.HandleLocationEvent)
	return mux, svc, coords
}

func TestSyncNowEndpoint(t *testing.T) {
	remote := &fakeRemote{}
	mux, svc, _ := newSyncTestMux(t, remote)

	if _, err := svc.AddTransaction(ledger.AddTransactionParams{Title: "x", Amount: "10", Type: ledger.TypeExpense}); err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}

	// First pass defers while the orchestrator rehydrates, second pushes.
	rr := doRequest(t, mux, http.MethodPost, "/api/sync/now", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("POST /api/sync/now = %d: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, mux, http.MethodPost, "/api/sync/now", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("second POST /api/sync/now = %d: %s", rr.Code, rr.Body.String())
	}
	if remote.upserts == 0 {
		t.Error("manual sync never reached the remote")
	}
}

func TestSyncNowSurfacesRemoteFailure(t *testing.T) {
	remote := &fakeRemote{
		UpsertFunc: func(ctx context.Context, snap *sync.Snapshot) error {
			return context.DeadlineExceeded
		},
	}
	mux, svc, _ := newSyncTestMux(t, remote)
	if _, err := svc.AddTransaction(ledger.AddTransactionParams{Title: "x", Amount: "10", Type: ledger.TypeExpense}); err != nil {
		t.Fatalf("AddTransaction() failed: %v", err)
	}

	doRequest(t, mux, http.MethodPost, "/api/sync/now", "") // deferred rehydration pass
	rr := doRequest(t, mux, http.MethodPost, "/api/sync/now", "")
	if rr.Code != http.StatusBadGateway {
		t.Errorf("failed sync = %d, want 502", rr.Code)
	}

	// Local data survives the failure.
	txs, _ := svc.Transactions()
	if len(txs) != 1 {
		t.Errorf("local transactions = %d after failed sync, want 1", len(txs))
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	mux, _, _ := newSyncTestMux(t, &fakeRemote{})

	rr := doRequest(t, mux, http.MethodGet, "/api/sync/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/sync/status = %d", rr.Code)
	}
}

func TestRestoreEndpoint(t *testing.T) {
	remote := &fakeRemote{
		FindByCodeFunc: func(ctx context.Context, code string) (*sync.Snapshot, error) {
			if code == "MH-ABC9KQ" {
				return &sync.Snapshot{
					DeviceID: "dev_other",
					Expenses: []ledger.Transaction{{ID: "t1", Title: "Lunch"}},
				}, nil
			}
			return nil, sync.ErrCodeNotFound
		},
	}
	mux, svc, _ := newSyncTestMux(t, remote)

	if rr := doRequest(t, mux, http.MethodPost, "/api/sync/restore", `{"code":"  "}`); rr.Code != http.StatusBadRequest {
		t.Errorf("blank code = %d, want 400", rr.Code)
	}
	if rr := doRequest(t, mux, http.MethodPost, "/api/sync/restore", `{"code":"MH-ZZZZZZ"}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown code = %d, want 404", rr.Code)
	}

	rr := doRequest(t, mux, http.MethodPost, "/api/sync/restore", `{"code":"mh-abc9kq"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("restore = %d: %s", rr.Code, rr.Body.String())
	}
	txs, _ := svc.Transactions()
	if len(txs) != 1 || txs[0].Title != "Lunch" {
		t.Errorf("restored transactions = %+v", txs)
	}
}

func TestEventEndpoints(t *testing.T) {
	mux, _, coords := newSyncTestMux(t, &fakeRemote{})

	if rr := doRequest(t, mux, http.MethodPost, "/api/events/online", ""); rr.Code != http.StatusAccepted {
		t.Errorf("online event = %d, want 202", rr.Code)
	}
	if rr := doRequest(t, mux, http.MethodPost, "/api/events/visible", ""); rr.Code != http.StatusAccepted {
		t.Errorf("visible event = %d, want 202", rr.Code)
	}
	if rr := doRequest(t, mux, http.MethodGet, "/api/events/online", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET event = %d, want 405", rr.Code)
	}

	rr := doRequest(t, mux, http.MethodPost, "/api/events/location", `{"lat":23.8103,"lon":90.4125}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("location event = %d: %s", rr.Code, rr.Body.String())
	}
	if !coords.set || coords.lat != 23.8103 {
		t.Errorf("coordinates not forwarded: %+v", coords)
	}
	if rr = doRequest(t, mux, http.MethodPost, "/api/events/location", `{"lat":123,"lon":0}`); rr.Code != http.StatusBadRequest {
		t.Errorf("out-of-range lat = %d, want 400", rr.Code)
	}
}
