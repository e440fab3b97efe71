package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"recruiting-ats/internal/cv"
	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/storage"
)

// @Summary List candidates
// @Tags candidates
// @Produce json
// @Param search query string false "Name, email or skill search"
// @Param status query string false "active, placed or inactive"
// @Success 200 {array} storage.Candidate
// @Router /candidates [get]
func (a *API) ListCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	candidates, err := a.DB.ListCandidates(r.Context(), storage.CandidateFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

// @Summary Create candidate
// @Tags candidates
// @Accept json
// @Produce json
// @Param candidate body storage.Candidate true "Candidate"
// @Success 201 {object} storage.Candidate
// @Failure 400 {object} errorResponse
// @Router /candidates [post]
func (a *API) CreateCandidateHandler(w http.ResponseWriter, r *http.Request) {
	var c storage.Candidate
	if !decode(w, r, &c) {
		return
	}
	if err := a.DB.CreateCandidate(r.Context(), &c); err != nil {
		writeError(w, r, err)
		return
	}
	a.MatchQueue.Enqueue(matching.JobCandidate, c.ID)
	writeJSON(w, http.StatusCreated, c)
}

// @Summary Get candidate
// @Tags candidates
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {object} storage.Candidate
// @Failure 404 {object} errorResponse
// @Router /candidates/{id} [get]
func (a *API) GetCandidateHandler(w http.ResponseWriter, r *http.Request) {
	c, err := a.DB.GetCandidate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// @Summary Update candidate
// @Tags candidates
// @Accept json
// @Produce json
// @Param id path string true "Candidate ID"
// @Param candidate body storage.Candidate true "Fields to change"
// @Success 200 {object} storage.Candidate
// @Failure 423 {object} errorResponse
// @Router /candidates/{id} [put]
func (a *API) UpdateCandidateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := a.DB.GetCandidate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !a.checkWritable(w, r, "candidate", id) || !decode(w, r, c) {
		return
	}
	c.ID = id
	if err := a.DB.UpdateCandidate(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	a.MatchQueue.Enqueue(matching.JobCandidate, id)
	writeJSON(w, http.StatusOK, c)
}

// @Summary Delete candidate
// @Tags candidates
// @Param id path string true "Candidate ID"
// @Success 204
// @Failure 423 {object} errorResponse
// @Router /candidates/{id} [delete]
func (a *API) DeleteCandidateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.checkWritable(w, r, "candidate", id) {
		return
	}
	if err := a.DB.DeleteCandidate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadResponse struct {
	Candidate *storage.Candidate `json:"candidate"`
	Document  storage.Document   `json:"document"`
	Extracted cv.Extraction      `json:"extracted"`
}

// UploadDocumentHandler handles CV uploads
// @Summary Upload a candidate document
// @Description Stores a CV (PDF, DOC, DOCX, ODT, RTF or TXT), extracts its text and merges the
// @Description recognised skills into the candidate profile.
// @Tags candidates
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Candidate ID"
// @Param file formData file true "CV file"
// @Success 201 {object} uploadResponse
// @Failure 400 {object} errorResponse
// @Failure 413 {object} errorResponse
// @Router /candidates/{id}/documents [post]
func (a *API) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := a.DB.GetCandidate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !a.checkWritable(w, r, "candidate", id) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cv.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(cv.MaxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, cv.ErrTooLarge)
			return
		}
		badRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file field")
		return
	}
	defer file.Close()

	log.Printf("[Upload] candidate %s: %s (%d bytes)", id, header.Filename, header.Size)
	parsed, err := a.Parser.ParseFile(c.ID, header.Filename, file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := a.DB.AppendDocument(r.Context(), id, parsed.Document, parsed.Profile.Skills)
	if err != nil {
		writeError(w, r, fmt.Errorf("append document: %w", err))
		return
	}
	// Fill profile fields the recruiter has not set yet.
	if fillProfile(updated, parsed.Profile) {
		if err := a.DB.UpdateCandidate(r.Context(), updated); err != nil {
			writeError(w, r, err)
			return
		}
	}
	a.MatchQueue.Enqueue(matching.JobCandidate, id)
	writeJSON(w, http.StatusCreated, uploadResponse{Candidate: updated, Document: parsed.Document, Extracted: parsed.Profile})
}

func fillProfile(c *storage.Candidate, e cv.Extraction) bool {
	changed := false
	if c.ExperienceYears == 0 && e.ExperienceYears > 0 {
		c.ExperienceYears = e.ExperienceYears
		changed = true
	}
	if c.EducationLevel == "" && e.EducationLevel != "" {
		c.EducationLevel = e.EducationLevel
		changed = true
	}
	return changed
}

// @Summary Match candidate against open requirements
// @Tags matching
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {array} matching.MatchResult
// @Router /candidates/{id}/match [post]
func (a *API) MatchCandidateHandler(w http.ResponseWriter, r *http.Request) {
	results, err := a.Matcher.MatchCandidate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// @Summary List applications
// @Tags applications
// @Produce json
// @Param requirement_id query string false "Requirement ID"
// @Param status query string false "Application status"
// @Success 200 {array} storage.Application
// @Router /applications [get]
func (a *API) ListApplicationsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	apps, err := a.DB.ListApplications(r.Context(), q.Get("requirement_id"), q.Get("status"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

// @Summary Create application
// @Tags applications
// @Accept json
// @Produce json
// @Param application body storage.Application true "Application"
// @Success 201 {object} storage.Application
// @Router /applications [post]
func (a *API) CreateApplicationHandler(w http.ResponseWriter, r *http.Request) {
	var app storage.Application
	if !decode(w, r, &app) {
		return
	}
	if err := a.DB.CreateApplication(r.Context(), &app); err != nil {
		writeError(w, r, err)
		return
	}
	a.MatchQueue.Enqueue(matching.JobRequirement, app.RequirementID)
	writeJSON(w, http.StatusCreated, app)
}

// @Summary Update application status
// @Tags applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param status body statusRequest true "New status"
// @Success 200 {object} storage.Application
// @Failure 423 {object} errorResponse
// @Router /applications/{id}/status [patch]
func (a *API) UpdateApplicationStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var in statusRequest
	if !a.checkWritable(w, r, "application", id) || !decode(w, r, &in) {
		return
	}
	if err := a.DB.UpdateApplicationStatus(r.Context(), id, in.Status); err != nil {
		writeError(w, r, err)
		return
	}
	app, err := a.DB.GetApplication(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// @Summary List talent pool
// @Tags talent-pool
// @Produce json
// @Success 200 {array} storage.TalentPoolEntry
// @Router /talent-pool [get]
func (a *API) ListTalentPoolHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := a.DB.ListTalentPool(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// @Summary Add candidate to talent pool
// @Description Re-adding a candidate refreshes the existing entry.
// @Tags talent-pool
// @Accept json
// @Produce json
// @Param entry body storage.TalentPoolEntry true "Entry"
// @Success 201 {object} storage.TalentPoolEntry
// @Router /talent-pool [post]
func (a *API) AddToTalentPoolHandler(w http.ResponseWriter, r *http.Request) {
	var e storage.TalentPoolEntry
	if !decode(w, r, &e) {
		return
	}
	if e.CandidateID == "" {
		badRequest(w, "candidate_id is required")
		return
	}
	if e.AddedBy == "" {
		e.AddedBy = userFrom(r).ID
	}
	if err := a.DB.AddToTalentPool(r.Context(), &e); err != nil {
		writeError(w, r, err)
		return
	}
	a.MatchQueue.Enqueue(matching.JobCandidate, e.CandidateID)
	writeJSON(w, http.StatusCreated, e)
}

// @Summary Remove talent pool entry
// @Tags talent-pool
// @Param id path string true "Entry ID"
// @Success 204
// @Router /talent-pool/{id} [delete]
func (a *API) RemoveFromTalentPoolHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.RemoveFromTalentPool(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
