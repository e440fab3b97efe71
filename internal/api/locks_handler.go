package api

import (
	"log"
	"net/http"

	"recruiting-ats/internal/storage"
)

type lockRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

type lockStatusResponse struct {
	Locked bool                 `json:"locked"`
	Lock   *storage.EditingLock `json:"lock,omitempty"`
}

// lockTarget decodes the body and requires a calling user.
func lockTarget(w http.ResponseWriter, r *http.Request) (lockRequest, user, bool) {
	var in lockRequest
	if !decode(w, r, &in) {
		return in, user{}, false
	}
	u := userFrom(r)
	if u.ID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "X-User-ID header is required"})
		return in, u, false
	}
	if in.EntityType == "" || in.EntityID == "" {
		badRequest(w, "entity_type and entity_id are required")
		return in, u, false
	}
	return in, u, true
}

// LockStatusHandler reports who edits an entity. Without entity parameters it lists the
// caller's own locks.
// @Summary Lock status
// @Tags locks
// @Produce json
// @Param entity_type query string false "Entity type"
// @Param entity_id query string false "Entity ID"
// @Param X-User-ID header string false "User"
// @Success 200 {object} lockStatusResponse
// @Router /locks [get]
func (a *API) LockStatusHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType, entityID := q.Get("entity_type"), q.Get("entity_id")
	if entityType == "" && entityID == "" {
		held, err := a.Locks.ListHeld(r.Context(), userFrom(r).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, held)
		return
	}
	lock, err := a.Locks.Status(r.Context(), entityType, entityID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lockStatusResponse{Locked: lock != nil, Lock: lock})
}

// @Summary Acquire editing lock
// @Tags locks
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User"
// @Param X-User-Name header string false "Display name"
// @Param lock body lockRequest true "Entity"
// @Success 200 {object} storage.EditingLock
// @Failure 423 {object} errorResponse
// @Router /locks [post]
func (a *API) AcquireLockHandler(w http.ResponseWriter, r *http.Request) {
	in, u, ok := lockTarget(w, r)
	if !ok {
		return
	}
	lock, err := a.Locks.Acquire(r.Context(), in.EntityType, in.EntityID, u.ID, u.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

// @Summary Release editing lock
// @Tags locks
// @Accept json
// @Param X-User-ID header string true "User"
// @Param lock body lockRequest true "Entity"
// @Success 204
// @Failure 409 {object} errorResponse
// @Router /locks [delete]
func (a *API) ReleaseLockHandler(w http.ResponseWriter, r *http.Request) {
	in, u, ok := lockTarget(w, r)
	if !ok {
		return
	}
	if err := a.Locks.Release(r.Context(), in.EntityType, in.EntityID, u.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Extend editing lock
// @Tags locks
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User"
// @Param lock body lockRequest true "Entity"
// @Success 200 {object} storage.EditingLock
// @Failure 409 {object} errorResponse
// @Router /locks/extend [post]
func (a *API) ExtendLockHandler(w http.ResponseWriter, r *http.Request) {
	in, u, ok := lockTarget(w, r)
	if !ok {
		return
	}
	lock, err := a.Locks.Extend(r.Context(), in.EntityType, in.EntityID, u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

// ForceReleaseLockHandler drops a lock regardless of its holder.
// @Summary Force-release editing lock
// @Tags locks
// @Accept json
// @Param X-User-ID header string true "Administrator"
// @Param lock body lockRequest true "Entity"
// @Success 204
// @Router /locks/force-release [post]
func (a *API) ForceReleaseLockHandler(w http.ResponseWriter, r *http.Request) {
	in, u, ok := lockTarget(w, r)
	if !ok {
		return
	}
	if err := a.Locks.ForceRelease(r.Context(), in.EntityType, in.EntityID); err != nil {
		writeError(w, r, err)
		return
	}
	log.Printf("[Locks] %s force-released %s %s", u.ID, in.EntityType, in.EntityID)
	w.WriteHeader(http.StatusNoContent)
}
