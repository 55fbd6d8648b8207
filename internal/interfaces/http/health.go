package http

import "net/http"

// HandleHealth is the liveness probe for the control API.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
