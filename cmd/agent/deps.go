package main

import (
	"context"
	"errors"
	"log"

	"moneyhistory/internal/domain/ledger"
	"moneyhistory/internal/domain/sync"
	"moneyhistory/internal/infrastructure/enrich"
	"moneyhistory/internal/infrastructure/geo"
	"moneyhistory/internal/infrastructure/postgres"
	httphandlers "moneyhistory/internal/interfaces/http"
	"moneyhistory/internal/localstore"
	"moneyhistory/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Store *localstore.Store
	DB    *postgres.DB

	Ledger       *ledger.Service
	Session      *sync.Session
	Orchestrator *sync.Orchestrator
	Resolver     *geo.Resolver

	// Handlers
	LedgerHandler  *httphandlers.LedgerHandler
	ProfileHandler *httphandlers.ProfileHandler
	StatsHandler   *httphandlers.StatsHandler
	SyncHandler    *httphandlers.SyncHandler
}

// disabledRemote stands in for the row store when remote sync is off, so
// the sync wiring stays uniform.
type disabledRemote struct{}

func (disabledRemote) Upsert(ctx context.Context, snap *sync.Snapshot) error {
	return errors.New("remote sync is disabled")
}

func (disabledRemote) FindByCode(ctx context.Context, code string) (*sync.Snapshot, error) {
	return nil, errors.New("remote sync is disabled")
}

// NewDependencies initializes all application components.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	store, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	log.Printf("Local store opened at %s", cfg.Store.Path)

	d := &Dependencies{Store: store}

	var remote sync.RemoteStore = disabledRemote{}
	var peers httphandlers.PeerLister
	if cfg.Sync.Enabled {
		db, err := postgres.New(cfg.Remote.ConnectionString())
		if err != nil {
			store.Close()
			return nil, err
		}
		log.Println("Connected to remote row store")

		repo := postgres.NewSnapshotRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			store.Close()
			return nil, err
		}
		d.DB = db
		remote = repo
		peers = repo
	} else {
		log.Println("Remote sync is disabled")
	}

	d.Ledger = ledger.NewService(store)

	d.Session, err = sync.NewSession(store)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Resolver = geo.NewResolver(cfg.Geo)
	enricher := enrich.NewClient(cfg.Enrich)

	d.Orchestrator = sync.NewOrchestrator(cfg.Sync, store, d.Ledger, d.Session, remote, d.Resolver, enricher)
	restorer := sync.NewRestorer(store, d.Session, remote)

	// Every local mutation wakes the sync debounce.
	d.Ledger.SetOnMutate(d.Orchestrator.NotifyChange)

	d.LedgerHandler = httphandlers.NewLedgerHandler(d.Ledger)
	d.ProfileHandler = httphandlers.NewProfileHandler(d.Ledger)
	d.StatsHandler = httphandlers.NewStatsHandler(d.Ledger)
	d.SyncHandler = httphandlers.NewSyncHandler(d.Orchestrator, d.Session, restorer, d.Resolver, peers)

	return d, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			log.Printf("Error closing remote connection: %v", err)
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			log.Printf("Error closing local store: %v", err)
		}
	}
}
