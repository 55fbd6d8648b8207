package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"moneyhistory/internal/domain/sync"
)

// CoordinateSink receives device positions supplied by a client of the
// control API.
type CoordinateSink interface {
	SetCoordinates(lat, lon float64)
}

// PeerLister reports last-sync times for devices sharing a sync code.
type PeerLister interface {
	LastSyncTimes(ctx context.Context, code string) (map[string]time.Time, error)
}

// SyncHandler exposes the orchestrator: manual sync, status, restore, and
// the event signals that stand in for browser online/visibility events.
type SyncHandler struct {
	orch     *sync.Orchestrator
	session  *sync.Session
	restorer *sync.Restorer
	coords   CoordinateSink
	peers    PeerLister
}

func NewSyncHandler(orch *sync.Orchestrator, session *sync.Session, restorer *sync.Restorer, coords CoordinateSink, peers PeerLister) *SyncHandler {
	return &SyncHandler{orch: orch, session: session, restorer: restorer, coords: coords, peers: peers}
}

type SyncStatusResponse struct {
	DeviceID    string               `json:"deviceId"`
	SyncCode    string               `json:"syncCode"`
	Syncing     bool                 `json:"syncing"`
	LastTxCount int                  `json:"lastTxCount"`
	Peers       map[string]time.Time `json:"peers,omitempty"`
}

type RestoreRequest struct {
	Code string `json:"code"`
}

type CoordinatesRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HandleSyncNow runs a user-initiated sync and waits for its outcome.
func (h *SyncHandler) HandleSyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, err := h.orch.SyncNow(r.Context())
	if err != nil {
		log.Printf("Manual sync failed: %v", err)
		// The result still carries status and attempt detail; local data
		// is untouched, so this is a 502 toward the remote, not a 500.
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStatus reports sync identity and in-flight state.
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := SyncStatusResponse{
		DeviceID:    h.session.DeviceID(),
		SyncCode:    h.session.SyncCode(),
		Syncing:     h.session.Syncing(),
		LastTxCount: h.session.LastSyncedTxCount(),
	}
	if h.peers != nil && resp.SyncCode != "" {
		peers, err := h.peers.LastSyncTimes(r.Context(), resp.SyncCode)
		if err != nil {
			log.Printf("Error listing sync peers: %v", err)
		} else {
			resp.Peers = peers
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRestore pulls a snapshot down by sync code and overwrites local data.
func (h *SyncHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	snap, err := h.restorer.Restore(r.Context(), req.Code)
	switch {
	case errors.Is(err, sync.ErrInvalidCode):
		http.Error(w, "Invalid sync code", http.StatusBadRequest)
		return
	case errors.Is(err, sync.ErrCodeNotFound):
		http.Error(w, "No data found for that code", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("Restore failed: %v", err)
		http.Error(w, "Restore failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"restored":     true,
		"transactions": len(snap.Expenses),
		"debts":        len(snap.Debts),
		"displayName":  snap.DisplayName,
	})
}

// HandleOnlineEvent mirrors the browser "connectivity regained" signal.
func (h *SyncHandler) HandleOnlineEvent(w http.ResponseWriter, r *http.Request) {
	h.event(w, r, h.orch.NotifyOnline)
}

// HandleVisibleEvent mirrors the browser foreground/visibility signal.
func (h *SyncHandler) HandleVisibleEvent(w http.ResponseWriter, r *http.Request) {
	h.event(w, r, h.orch.NotifyVisible)
}

func (h *SyncHandler) event(w http.ResponseWriter, r *http.Request, notify func()) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	notify()
	w.WriteHeader(http.StatusAccepted)
}

// HandleLocationEvent stores device coordinates for the next location
// resolution.
func (h *SyncHandler) HandleLocationEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.coords == nil {
		http.Error(w, "Location resolution disabled", http.StatusConflict)
		return
	}

	var req CoordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 {
		http.Error(w, "Coordinates out of range", http.StatusBadRequest)
		return
	}

	h.coords.SetCoordinates(req.Lat, req.Lon)
	w.WriteHeader(http.StatusAccepted)
}
