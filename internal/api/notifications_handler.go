package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"recruiting-ats/internal/storage"
)

const streamHeartbeat = 25 * time.Second

type notificationsResponse struct {
	Notifications []*storage.Notification `json:"notifications"`
	UnreadCount   int                     `json:"unread_count"`
}

// requireUser answers 401 when the caller is anonymous.
func requireUser(w http.ResponseWriter, r *http.Request) (user, bool) {
	u := userFrom(r)
	if u.ID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "X-User-ID header is required"})
		return u, false
	}
	return u, true
}

// @Summary List notifications of the caller
// @Tags notifications
// @Produce json
// @Param X-User-ID header string true "User"
// @Param unread query bool false "Only unread"
// @Success 200 {object} notificationsResponse
// @Router /notifications [get]
func (a *API) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := a.Notify.List(r.Context(), u.ID, queryBool(r, "unread"), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread, err := a.Notify.UnreadCount(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{Notifications: list, UnreadCount: unread})
}

// @Summary Mark notification read
// @Tags notifications
// @Param X-User-ID header string true "User"
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (a *API) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.Notify.MarkRead(r.Context(), r.PathValue("id"), u.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Param X-User-ID header string true "User"
// @Success 200 {object} map[string]int64
// @Router /notifications/read-all [post]
func (a *API) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, err := a.Notify.MarkAllRead(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// NotificationStreamHandler pushes the caller's notifications as server-sent events until the
// client disconnects.
// @Summary Stream notifications
// @Tags notifications
// @Produce text/event-stream
// @Param X-User-ID header string true "User"
// @Success 200
// @Router /notifications/stream [get]
func (a *API) NotificationStreamHandler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	events, cancel := a.Hub.Subscribe(u.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				log.Printf("[API] encode notification %s: %v", n.ID, err)
				continue
			}
			fmt.Fprintf(w, "event: notification\nid: %s\ndata: %s\n\n", n.ID, data)
			flusher.Flush()
		}
	}
}
