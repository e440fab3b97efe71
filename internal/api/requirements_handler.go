package api

import (
	"net/http"

	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/storage"
)

// @Summary List requirements
// @Tags requirements
// @Produce json
// @Param customer_id query string false "Customer ID"
// @Param status query string false "open, on_hold, filled or closed"
// @Success 200 {array} storage.Requirement
// @Router /requirements [get]
func (a *API) ListRequirementsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqs, err := a.DB.ListRequirements(r.Context(), storage.RequirementFilter{
		CustomerID: q.Get("customer_id"),
		Status:     q.Get("status"),
		Limit:      queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// CreateRequirementHandler creates a requirement and queues its first matching run.
// @Summary Create requirement
// @Tags requirements
// @Accept json
// @Produce json
// @Param requirement body storage.Requirement true "Requirement"
// @Success 201 {object} storage.Requirement
// @Failure 400 {object} errorResponse
// @Router /requirements [post]
func (a *API) CreateRequirementHandler(w http.ResponseWriter, r *http.Request) {
	var req storage.Requirement
	if !decode(w, r, &req) {
		return
	}
	if req.OwnerUserID == "" {
		req.OwnerUserID = userFrom(r).ID
	}
	if err := a.DB.CreateRequirement(r.Context(), &req); err != nil {
		writeError(w, r, err)
		return
	}
	a.MatchQueue.Enqueue(matching.JobRequirement, req.ID)
	writeJSON(w, http.StatusCreated, req)
}

// @Summary Get requirement
// @Tags requirements
// @Produce json
// @Param id path string true "Requirement ID"
// @Success 200 {object} storage.Requirement
// @Failure 404 {object} errorResponse
// @Router /requirements/{id} [get]
func (a *API) GetRequirementHandler(w http.ResponseWriter, r *http.Request) {
	req, err := a.DB.GetRequirement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// @Summary Update requirement
// @Tags requirements
// @Accept json
// @Produce json
// @Param id path string true "Requirement ID"
// @Param requirement body storage.Requirement true "Fields to change"
// @Success 200 {object} storage.Requirement
// @Failure 423 {object} errorResponse
// @Router /requirements/{id} [put]
func (a *API) UpdateRequirementHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := a.DB.GetRequirement(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	customerID := req.CustomerID
	if !a.checkWritable(w, r, "requirement", id) || !decode(w, r, req) {
		return
	}
	req.ID, req.CustomerID = id, customerID
	if err := a.DB.UpdateRequirement(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Status == "open" {
		a.MatchQueue.Enqueue(matching.JobRequirement, id)
	}
	writeJSON(w, http.StatusOK, req)
}

// @Summary Delete requirement
// @Tags requirements
// @Param id path string true "Requirement ID"
// @Success 204
// @Failure 423 {object} errorResponse
// @Router /requirements/{id} [delete]
func (a *API) DeleteRequirementHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.checkWritable(w, r, "requirement", id) {
		return
	}
	if err := a.DB.DeleteRequirement(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type matchRequest struct {
	Threshold     int      `json:"threshold"`
	Sources       []string `json:"sources"`
	IncludePortal bool     `json:"include_portal"`
}

// MatchRequirementHandler scores the requirement against candidates, applications and the
// talent pool, optionally adding portal profiles.
// @Summary Match requirement
// @Tags matching
// @Accept json
// @Produce json
// @Param id path string true "Requirement ID"
// @Param options body matchRequest false "Threshold, sources, include_portal"
// @Success 200 {object} matching.Report
// @Failure 404 {object} errorResponse
// @Router /requirements/{id}/match [post]
func (a *API) MatchRequirementHandler(w http.ResponseWriter, r *http.Request) {
	var in matchRequest
	if !decode(w, r, &in) {
		return
	}
	if in.Threshold < 0 || in.Threshold > 100 {
		badRequest(w, "threshold must be within 0-100")
		return
	}
	opts := matching.Options{Threshold: in.Threshold, Sources: in.Sources}
	id := r.PathValue("id")

	if in.IncludePortal || queryBool(r, "include_portal") {
		rep, err := a.PortalMatcher.Combined(r.Context(), id, opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}
	rep, err := a.Matcher.MatchRequirement(r.Context(), id, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// @Summary List stored matches of a requirement
// @Tags matching
// @Produce json
// @Param id path string true "Requirement ID"
// @Param status query string false "new, viewed, contacted, rejected or accepted"
// @Param min_score query int false "Minimum score"
// @Success 200 {array} storage.RequirementMatch
// @Router /requirements/{id}/matches [get]
func (a *API) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	matches, err := a.Matcher.ListMatches(r.Context(), r.PathValue("id"), r.URL.Query().Get("status"), queryInt(r, "min_score", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// @Summary Match requirement against portal profiles
// @Tags matching
// @Produce json
// @Param id path string true "Requirement ID"
// @Success 200 {object} matching.Report
// @Failure 503 {object} errorResponse
// @Router /requirements/{id}/portal-match [post]
func (a *API) PortalMatchHandler(w http.ResponseWriter, r *http.Request) {
	rep, err := a.PortalMatcher.MatchRequirement(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type statusRequest struct {
	Status string `json:"status"`
}

// @Summary Update match status
// @Tags matching
// @Accept json
// @Produce json
// @Param id path string true "Match ID"
// @Param status body statusRequest true "New status"
// @Success 200 {object} storage.RequirementMatch
// @Failure 409 {object} errorResponse
// @Router /matches/{id}/status [patch]
func (a *API) UpdateMatchStatusHandler(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if !decode(w, r, &in) {
		return
	}
	m, err := a.Matcher.UpdateMatchStatus(r.Context(), r.PathValue("id"), in.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
