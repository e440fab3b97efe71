package api

import (
	"encoding/json"
	"net/http"
	"time"

	"recruiting-ats/internal/queue"
	"recruiting-ats/internal/storage"
)

// SchedulerInitHandler recovers stale tasks, seeds the recurring ones and runs what is due.
// It is meant to be called by an external cron or at deploy time.
// @Summary Initialise and run the scheduler
// @Tags scheduler
// @Produce json
// @Success 200 {object} scheduler.InitResult
// @Router /scheduler/init [post]
func (a *API) SchedulerInitHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.Scheduler.Init(r.Context(), queryInt(r, "limit", a.Config.SchedulerBatch))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// @Summary List scheduled tasks
// @Tags scheduler
// @Produce json
// @Param status query string false "pending, running, completed, failed or cancelled"
// @Param type query string false "Task type"
// @Success 200 {array} storage.ScheduledTask
// @Router /scheduler/tasks [get]
func (a *API) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := a.Scheduler.List(r.Context(), q.Get("status"), q.Get("type"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type scheduleRequest struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload" swaggertype:"object"`
	RunAt       time.Time       `json:"run_at"`
	Priority    int             `json:"priority"`
	MaxAttempts int             `json:"max_attempts"`
}

// @Summary Schedule a task
// @Tags scheduler
// @Accept json
// @Produce json
// @Param task body scheduleRequest true "Task"
// @Success 201 {object} storage.ScheduledTask
// @Failure 400 {object} errorResponse
// @Router /scheduler/tasks [post]
func (a *API) ScheduleTaskHandler(w http.ResponseWriter, r *http.Request) {
	var in scheduleRequest
	if !decode(w, r, &in) {
		return
	}
	var payload any
	if len(in.Payload) > 0 {
		payload = in.Payload
	}
	t, err := a.Scheduler.Schedule(r.Context(), in.Type, payload, in.RunAt, in.Priority, in.MaxAttempts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// @Summary Get task
// @Tags scheduler
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} storage.ScheduledTask
// @Router /scheduler/tasks/{id} [get]
func (a *API) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	t, err := a.Scheduler.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// @Summary Cancel pending task
// @Tags scheduler
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} storage.ScheduledTask
// @Failure 409 {object} errorResponse
// @Router /scheduler/tasks/{id}/cancel [post]
func (a *API) CancelTaskHandler(w http.ResponseWriter, r *http.Request) {
	t, err := a.Scheduler.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// @Summary Retry failed task
// @Tags scheduler
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} storage.ScheduledTask
// @Failure 409 {object} errorResponse
// @Router /scheduler/tasks/{id}/retry [post]
func (a *API) RetryTaskHandler(w http.ResponseWriter, r *http.Request) {
	t, err := a.Scheduler.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Posting pipeline

// @Summary List pipeline items
// @Tags pipeline
// @Produce json
// @Param status query string false "queued, processing, published, failed or cancelled"
// @Param channel query string false "Channel"
// @Param posting_id query string false "Posting ID"
// @Success 200 {array} storage.PipelineItem
// @Router /pipeline [get]
func (a *API) ListPipelineHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := a.Pipeline.List(r.Context(), storage.PipelineFilter{
		Status:    q.Get("status"),
		Channel:   q.Get("channel"),
		PostingID: q.Get("posting_id"),
		Limit:     queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// @Summary Queue a posting on one channel
// @Tags pipeline
// @Accept json
// @Produce json
// @Param item body storage.PipelineItem true "Item"
// @Success 201 {object} storage.PipelineItem
// @Router /pipeline [post]
func (a *API) EnqueuePipelineHandler(w http.ResponseWriter, r *http.Request) {
	var it storage.PipelineItem
	if !decode(w, r, &it) {
		return
	}
	if err := a.Pipeline.Enqueue(r.Context(), &it); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// @Summary Pipeline counts by status
// @Tags pipeline
// @Produce json
// @Success 200 {object} map[string]int
// @Router /pipeline/stats [get]
func (a *API) PipelineStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Pipeline.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// @Summary Dispatch due pipeline items
// @Tags pipeline
// @Produce json
// @Success 200 {object} scheduler.DispatchSummary
// @Router /pipeline/dispatch [post]
func (a *API) DispatchPipelineHandler(w http.ResponseWriter, r *http.Request) {
	sum, err := a.Pipeline.DispatchDue(r.Context(), queryInt(r, "limit", a.Config.SchedulerBatch))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// PipelineResultHandler accepts channel results from workers that report over HTTP instead
// of the result queue.
// @Summary Report a dispatch result
// @Tags pipeline
// @Accept json
// @Produce json
// @Param result body queue.DispatchResult true "Result"
// @Success 200 {object} storage.PipelineItem
// @Failure 409 {object} errorResponse
// @Router /pipeline/results [post]
func (a *API) PipelineResultHandler(w http.ResponseWriter, r *http.Request) {
	var res queue.DispatchResult
	if !decode(w, r, &res) {
		return
	}
	if res.ItemID == "" {
		badRequest(w, "item_id is required")
		return
	}
	it, err := a.Pipeline.CompleteDispatch(r.Context(), res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// @Summary Cancel queued pipeline item
// @Tags pipeline
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} storage.PipelineItem
// @Router /pipeline/{id}/cancel [post]
func (a *API) CancelPipelineHandler(w http.ResponseWriter, r *http.Request) {
	it, err := a.Pipeline.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// @Summary Requeue failed pipeline item
// @Tags pipeline
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} storage.PipelineItem
// @Router /pipeline/{id}/retry [post]
func (a *API) RetryPipelineHandler(w http.ResponseWriter, r *http.Request) {
	it, err := a.Pipeline.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// Portal sync settings

// @Summary List portal sync settings
// @Tags sync
// @Produce json
// @Success 200 {array} storage.SyncSettings
// @Router /sync-settings [get]
func (a *API) ListSyncSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := a.Sync.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// @Summary Get portal sync settings
// @Tags sync
// @Produce json
// @Param portal path string true "Portal name"
// @Success 200 {object} storage.SyncSettings
// @Router /sync-settings/{portal} [get]
func (a *API) GetSyncSettingsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := a.Sync.Get(r.Context(), r.PathValue("portal"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// @Summary Create or update portal sync settings
// @Tags sync
// @Accept json
// @Produce json
// @Param portal path string true "Portal name"
// @Param settings body storage.SyncSettings true "Settings"
// @Success 200 {object} storage.SyncSettings
// @Failure 400 {object} errorResponse
// @Router /sync-settings/{portal} [put]
func (a *API) UpsertSyncSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var in storage.SyncSettings
	if !decode(w, r, &in) {
		return
	}
	in.Portal = r.PathValue("portal")
	s, err := a.Sync.Upsert(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
