package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recruiting-ats/internal/app"
	"recruiting-ats/internal/cv"
	"recruiting-ats/internal/locks"
	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/portal"
	"recruiting-ats/internal/scheduler"
	"recruiting-ats/internal/storage"
)

type API struct {
	*app.App
}

func NewAPI(a *app.App) *API {
	return &API{App: a}
}

// user identifies the caller. Authentication happens in front of this service, which forwards
// the user in headers.
type user struct {
	ID   string
	Name string
}

func userFrom(r *http.Request) user {
	return user{
		ID:   strings.TrimSpace(r.Header.Get("X-User-ID")),
		Name: strings.TrimSpace(r.Header.Get("X-User-Name")),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode JSON response: %v", err)
	}
}

type errorResponse struct {
	Error string               `json:"error"`
	Lock  *storage.EditingLock `json:"lock,omitempty"`
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *locks.LockedError
	switch {
	case errors.As(err, &locked):
		writeJSON(w, http.StatusLocked, errorResponse{Error: err.Error(), Lock: locked.Holder})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrInvalid),
		errors.Is(err, locks.ErrUnknownEntity),
		errors.Is(err, matching.ErrInvalidStatus),
		errors.Is(err, scheduler.ErrUnknownTaskType),
		errors.Is(err, cv.ErrUnsupportedType):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, cv.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, matching.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrInvalidTransition),
		errors.Is(err, locks.ErrNotHolder):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, portal.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		log.Printf("[API] %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// checkWritable answers 423 when another user holds the editing lock.
func (a *API) checkWritable(w http.ResponseWriter, r *http.Request, entityType, id string) bool {
	if err := a.Locks.CheckWritable(r.Context(), entityType, id, userFrom(r).ID); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// HealthHandler reports liveness and database reachability.
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.GetConnection().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "time": time.Now().UTC().Format(time.RFC3339)})
}
