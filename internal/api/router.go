package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRouter(a *API, swaggerURL string) http.Handler {
	mux := http.NewServeMux()

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL(swaggerURL),
	))
	mux.HandleFunc("GET /health", a.HealthHandler)

	// Customers & contacts
	mux.HandleFunc("GET /api/customers", a.ListCustomersHandler)
	mux.HandleFunc("POST /api/customers", a.CreateCustomerHandler)
	mux.HandleFunc("GET /api/customers/{id}", a.GetCustomerHandler)
	mux.HandleFunc("PUT /api/customers/{id}", a.UpdateCustomerHandler)
	mux.HandleFunc("DELETE /api/customers/{id}", a.DeleteCustomerHandler)
	mux.HandleFunc("GET /api/customers/{id}/contacts", a.ListContactsHandler)
	mux.HandleFunc("POST /api/customers/{id}/contacts", a.CreateContactHandler)
	mux.HandleFunc("PUT /api/contacts/{id}", a.UpdateContactHandler)
	mux.HandleFunc("DELETE /api/contacts/{id}", a.DeleteContactHandler)

	// Requirements & matching
	mux.HandleFunc("GET /api/requirements", a.ListRequirementsHandler)
	mux.HandleFunc("POST /api/requirements", a.CreateRequirementHandler)
	mux.HandleFunc("GET /api/requirements/{id}", a.GetRequirementHandler)
	mux.HandleFunc("PUT /api/requirements/{id}", a.UpdateRequirementHandler)
	mux.HandleFunc("DELETE /api/requirements/{id}", a.DeleteRequirementHandler)
	mux.HandleFunc("POST /api/requirements/{id}/match", a.MatchRequirementHandler)
	mux.HandleFunc("GET /api/requirements/{id}/matches", a.ListMatchesHandler)
	mux.HandleFunc("POST /api/requirements/{id}/portal-match", a.PortalMatchHandler)
	mux.HandleFunc("PATCH /api/matches/{id}/status", a.UpdateMatchStatusHandler)

	// Candidates, applications & talent pool
	mux.HandleFunc("GET /api/candidates", a.ListCandidatesHandler)
	mux.HandleFunc("POST /api/candidates", a.CreateCandidateHandler)
	mux.HandleFunc("GET /api/candidates/{id}", a.GetCandidateHandler)
	mux.HandleFunc("PUT /api/candidates/{id}", a.UpdateCandidateHandler)
	mux.HandleFunc("DELETE /api/candidates/{id}", a.DeleteCandidateHandler)
	mux.HandleFunc("POST /api/candidates/{id}/documents", a.UploadDocumentHandler)
	mux.HandleFunc("POST /api/candidates/{id}/match", a.MatchCandidateHandler)
	mux.HandleFunc("GET /api/applications", a.ListApplicationsHandler)
	mux.HandleFunc("POST /api/applications", a.CreateApplicationHandler)
	mux.HandleFunc("PATCH /api/applications/{id}/status", a.UpdateApplicationStatusHandler)
	mux.HandleFunc("GET /api/talent-pool", a.ListTalentPoolHandler)
	mux.HandleFunc("POST /api/talent-pool", a.AddToTalentPoolHandler)
	mux.HandleFunc("DELETE /api/talent-pool/{id}", a.RemoveFromTalentPoolHandler)

	// Job postings
	mux.HandleFunc("GET /api/postings", a.ListPostingsHandler)
	mux.HandleFunc("POST /api/postings", a.CreatePostingHandler)
	mux.HandleFunc("GET /api/postings/{id}", a.GetPostingHandler)
	mux.HandleFunc("POST /api/postings/{id}/publish", a.PublishPostingHandler)

	// Editing locks
	mux.HandleFunc("GET /api/locks", a.LockStatusHandler)
	mux.HandleFunc("POST /api/locks", a.AcquireLockHandler)
	mux.HandleFunc("DELETE /api/locks", a.ReleaseLockHandler)
	mux.HandleFunc("POST /api/locks/extend", a.ExtendLockHandler)
	mux.HandleFunc("POST /api/locks/force-release", a.ForceReleaseLockHandler)

	// Scheduler, pipeline & portal sync
	mux.HandleFunc("POST /api/scheduler/init", a.SchedulerInitHandler)
	mux.HandleFunc("GET /api/scheduler/tasks", a.ListTasksHandler)
	mux.HandleFunc("POST /api/scheduler/tasks", a.ScheduleTaskHandler)
	mux.HandleFunc("GET /api/scheduler/tasks/{id}", a.GetTaskHandler)
	mux.HandleFunc("POST /api/scheduler/tasks/{id}/cancel", a.CancelTaskHandler)
	mux.HandleFunc("POST /api/scheduler/tasks/{id}/retry", a.RetryTaskHandler)
	mux.HandleFunc("GET /api/pipeline", a.ListPipelineHandler)
	mux.HandleFunc("POST /api/pipeline", a.EnqueuePipelineHandler)
	mux.HandleFunc("GET /api/pipeline/stats", a.PipelineStatsHandler)
	mux.HandleFunc("POST /api/pipeline/dispatch", a.DispatchPipelineHandler)
	mux.HandleFunc("POST /api/pipeline/results", a.PipelineResultHandler)
	mux.HandleFunc("POST /api/pipeline/{id}/cancel", a.CancelPipelineHandler)
	mux.HandleFunc("POST /api/pipeline/{id}/retry", a.RetryPipelineHandler)
	mux.HandleFunc("GET /api/sync-settings", a.ListSyncSettingsHandler)
	mux.HandleFunc("GET /api/sync-settings/{portal}", a.GetSyncSettingsHandler)
	mux.HandleFunc("PUT /api/sync-settings/{portal}", a.UpsertSyncSettingsHandler)

	// Notifications
	mux.HandleFunc("GET /api/notifications", a.ListNotificationsHandler)
	mux.HandleFunc("POST /api/notifications/read-all", a.MarkAllNotificationsReadHandler)
	mux.HandleFunc("POST /api/notifications/{id}/read", a.MarkNotificationReadHandler)
	mux.HandleFunc("GET /api/notifications/stream", a.NotificationStreamHandler)

	return mux
}
