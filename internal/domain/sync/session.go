package sync

import (
	"crypto/rand"
	"fmt"
	"log"
	"sync"

	"moneyhistory/internal/localstore"
)

// Sync codes avoid 0/O/1/I so they survive being read over the phone.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength   = 6
	codePrefix   = "MH-"
	devicePrefix = "dev_"
)

// syncRecord is what gets persisted after a successful push, so the next
// debounce cycle can tell whether anything actually changed and the empty
// overwrite guard knows how big the last payload was.
type syncRecord struct {
	Fingerprint string `json:"fingerprint"`
	TxCount     int    `json:"txCount"`
}

// Session owns the per-process sync state: device identity, shareable sync
// code, the single-flight lock, and the last successfully synced payload.
// All of it used to live in ambient globals; handing one Session to the
// orchestrator keeps tests honest and restarts cheap. Identity is read from
// the store on every access, so a reset that deletes the sync code takes
// effect without a restart and the next sync mints a fresh one.
type Session struct {
	store *localstore.Store

	mu      sync.Mutex
	syncing bool
	last    syncRecord
}

func NewSession(store *localstore.Store) (*Session, error) {
	s := &Session{store: store}
	if _, err := store.GetJSON(localstore.KeyLastSyncPayload, &s.last); err != nil {
		return nil, fmt.Errorf("failed to load last sync record: %w", err)
	}
	return s, nil
}

// EnsureIdentity generates and persists the device id and sync code if the
// store holds none. Idempotent while an identity exists.
func (s *Session) EnsureIdentity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, _, err := s.store.Get(localstore.KeyDeviceID)
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}
	if id == "" {
		id = devicePrefix + randomToken(12)
		if err := s.store.Set(localstore.KeyDeviceID, id); err != nil {
			return fmt.Errorf("failed to persist device id: %w", err)
		}
		log.Printf("Generated device id %s", id)
	}

	code, _, err := s.store.Get(localstore.KeySyncCode)
	if err != nil {
		return fmt.Errorf("failed to load sync code: %w", err)
	}
	if code == "" {
		code = codePrefix + randomToken(codeLength)
		if err := s.store.Set(localstore.KeySyncCode, code); err != nil {
			return fmt.Errorf("failed to persist sync code: %w", err)
		}
		log.Printf("Generated sync code %s", code)
	}
	return nil
}

func (s *Session) DeviceID() string {
	id, _, _ := s.store.Get(localstore.KeyDeviceID)
	return id
}

func (s *Session) SyncCode() string {
	code, _, _ := s.store.Get(localstore.KeySyncCode)
	return code
}

// AdoptIdentity replaces the local identity after a restore so future syncs
// keep updating the restored row.
func (s *Session) AdoptIdentity(deviceID, syncCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deviceID != "" {
		if err := s.store.Set(localstore.KeyDeviceID, deviceID); err != nil {
			return fmt.Errorf("failed to persist device id: %w", err)
		}
	}
	if syncCode != "" {
		if err := s.store.Set(localstore.KeySyncCode, syncCode); err != nil {
			return fmt.Errorf("failed to persist sync code: %w", err)
		}
	}
	return nil
}

// TryBegin acquires the single-flight sync lock. There is no queue: a sync
// requested while one runs is dropped, the caller decides whether to wait.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	return true
}

func (s *Session) End() {
	s.mu.Lock()
	s.syncing = false
	s.mu.Unlock()
}

func (s *Session) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// RecordSynced persists the fingerprint and size of a successfully pushed
// payload.
func (s *Session) RecordSynced(fingerprint string, txCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := syncRecord{Fingerprint: fingerprint, TxCount: txCount}
	if err := s.store.SetJSON(localstore.KeyLastSyncPayload, rec); err != nil {
		return fmt.Errorf("failed to persist sync record: %w", err)
	}
	s.last = rec
	return nil
}

func (s *Session) LastFingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Fingerprint
}

func (s *Session) LastSyncedTxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.TxCount
}

// SyncCodeSupported reports whether the remote schema accepted the sync_code
// column last time. Defaults to true until an undefined-column error proves
// otherwise.
func (s *Session) SyncCodeSupported() bool {
	v, ok, err := s.store.Get(localstore.KeyRemoteSyncCode)
	if err != nil || !ok {
		return true
	}
	return v != "false"
}

func (s *Session) MarkSyncCodeUnsupported() error {
	return s.store.Set(localstore.KeyRemoteSyncCode, "false")
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out)
}
