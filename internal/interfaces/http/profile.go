package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"moneyhistory/internal/domain/ledger"
)

// ProfileHandler covers identity-adjacent settings: display name, goal name,
// theme/language/currency preferences, app lock, and the full reset.
type ProfileHandler struct {
	svc *ledger.Service
}

func NewProfileHandler(svc *ledger.Service) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

type ProfileResponse struct {
	DisplayName string `json:"displayName"`
	GoalName    string `json:"goalName"`
	Theme       string `json:"theme"`
	Lang        string `json:"lang"`
	Currency    string `json:"currency"`
	LockEnabled bool   `json:"lockEnabled"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	GoalName    *string `json:"goalName,omitempty"`
	Theme       *string `json:"theme,omitempty"`
	Lang        *string `json:"lang,omitempty"`
	Currency    *string `json:"currency,omitempty"`
}

type PINRequest struct {
	PIN string `json:"pin"`
}

// HandleProfile reads or patches profile settings. Only the fields present
// in the request are touched.
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.profile())

	case http.MethodPatch:
		var req UpdateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.apply(&req); err != nil {
			log.Printf("Error updating profile: %v", err)
			http.Error(w, "Failed to update profile", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, h.profile())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProfileHandler) profile() ProfileResponse {
	return ProfileResponse{
		DisplayName: h.svc.DisplayName(),
		GoalName:    h.svc.GoalName(),
		Theme:       h.svc.Preference("theme"),
		Lang:        h.svc.Preference("lang"),
		Currency:    h.svc.Preference("currency"),
		LockEnabled: h.svc.LockEnabled(),
	}
}

func (h *ProfileHandler) apply(req *UpdateProfileRequest) error {
	if req.DisplayName != nil {
		if err := h.svc.SetDisplayName(*req.DisplayName); err != nil {
			return err
		}
	}
	if req.GoalName != nil {
		if err := h.svc.SetGoalName(*req.GoalName); err != nil {
			return err
		}
	}
	for key, val := range map[string]*string{"theme": req.Theme, "lang": req.Lang, "currency": req.Currency} {
		if val == nil {
			continue
		}
		if err := h.svc.SetPreference(key, *val); err != nil {
			return err
		}
	}
	return nil
}

// HandleLockEnable turns the app lock on with a new PIN.
func (h *ProfileHandler) HandleLockEnable(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, h.svc.EnableLock)
}

// HandleLockVerify checks a PIN without changing anything.
func (h *ProfileHandler) HandleLockVerify(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, h.svc.VerifyPIN)
}

// HandleLockDisable removes the lock after verifying the PIN.
func (h *ProfileHandler) HandleLockDisable(w http.ResponseWriter, r *http.Request) {
	h.lockAction(w, r, h.svc.DisableLock)
}

func (h *ProfileHandler) lockAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := action(req.PIN)
	switch {
	case errors.Is(err, ledger.ErrWrongPIN):
		http.Error(w, "Wrong PIN", http.StatusForbidden)
	case errors.Is(err, ledger.ErrLockNotSet):
		http.Error(w, "App lock is not set", http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"lockEnabled": h.svc.LockEnabled()})
	}
}

// HandleReset wipes the ledger. Preferences and device identity survive.
func (h *ProfileHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.svc.ResetAll(); err != nil {
		log.Printf("Error resetting data: %v", err)
		http.Error(w, "Failed to reset", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
