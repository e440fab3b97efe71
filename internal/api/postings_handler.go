package api

import (
	"net/http"
	"time"

	"recruiting-ats/internal/storage"
)

// @Summary List job postings
// @Tags postings
// @Produce json
// @Param requirement_id query string false "Requirement ID"
// @Success 200 {array} storage.JobPosting
// @Router /postings [get]
func (a *API) ListPostingsHandler(w http.ResponseWriter, r *http.Request) {
	postings, err := a.DB.ListPostings(r.Context(), r.URL.Query().Get("requirement_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postings)
}

// @Summary Create job posting
// @Tags postings
// @Accept json
// @Produce json
// @Param posting body storage.JobPosting true "Posting"
// @Success 201 {object} storage.JobPosting
// @Router /postings [post]
func (a *API) CreatePostingHandler(w http.ResponseWriter, r *http.Request) {
	var p storage.JobPosting
	if !decode(w, r, &p) {
		return
	}
	if err := a.DB.CreatePosting(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// @Summary Get job posting
// @Tags postings
// @Produce json
// @Param id path string true "Posting ID"
// @Success 200 {object} storage.JobPosting
// @Router /postings/{id} [get]
func (a *API) GetPostingHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.DB.GetPosting(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type publishRequest struct {
	Channels     []string  `json:"channels"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// PublishPostingHandler queues the posting on each channel and marks it published.
// @Summary Publish job posting
// @Tags postings
// @Accept json
// @Produce json
// @Param id path string true "Posting ID"
// @Param publish body publishRequest true "Channels and optional schedule"
// @Success 202 {array} storage.PipelineItem
// @Failure 409 {object} errorResponse
// @Router /postings/{id}/publish [post]
func (a *API) PublishPostingHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.checkWritable(w, r, "job_posting", id) {
		return
	}
	var in publishRequest
	if !decode(w, r, &in) {
		return
	}
	if len(in.Channels) == 0 {
		badRequest(w, "at least one channel is required")
		return
	}
	items, err := a.Pipeline.PublishPosting(r.Context(), id, in.Channels, in.ScheduledFor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, items)
}
