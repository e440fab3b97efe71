package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"recruiting-ats/internal/storage"
)

const MinSyncInterval = 5

// PortalSyncer runs one portal sync. matching.PortalMatcher plus the portal cache provide it in
// production.
type PortalSyncer interface {
	SyncPortal(ctx context.Context, portal string) (matched int, err error)
}

type SyncService struct {
	db       *storage.DB
	syncer   PortalSyncer
	notifier Notifier
	opsUser  string
	now      func() time.Time
}

func NewSyncService(db *storage.DB, syncer PortalSyncer, notifier Notifier, opsUser string) *SyncService {
	return &SyncService{db: db, syncer: syncer, notifier: notifier, opsUser: opsUser, now: time.Now}
}

func (s *SyncService) WithClock(now func() time.Time) *SyncService {
	s.now = now
	return s
}

func (s *SyncService) Get(ctx context.Context, portal string) (*storage.SyncSettings, error) {
	return s.db.GetSyncSettings(ctx, portal)
}

func (s *SyncService) List(ctx context.Context) ([]*storage.SyncSettings, error) {
	return s.db.ListSyncSettings(ctx)
}

// Upsert stores the portal's settings. Enabling a portal schedules its next sync one interval
// after the last one, or now when it never ran.
func (s *SyncService) Upsert(ctx context.Context, in *storage.SyncSettings) (*storage.SyncSettings, error) {
	in.Portal = strings.ToLower(strings.TrimSpace(in.Portal))
	if in.Portal == "" {
		return nil, fmt.Errorf("%w: portal is required", storage.ErrInvalid)
	}
	if in.IntervalMinutes < MinSyncInterval {
		return nil, fmt.Errorf("%w: interval must be at least %d minutes", storage.ErrInvalid, MinSyncInterval)
	}

	in.NextSyncAt = nil
	if in.Enabled {
		next := s.now()
		if cur, err := s.db.GetSyncSettings(ctx, in.Portal); err == nil && cur.LastSyncAt != nil {
			if n := cur.LastSyncAt.Add(time.Duration(in.IntervalMinutes) * time.Minute); n.After(next) {
				next = n
			}
		} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		in.NextSyncAt = &next
	}
	if err := s.db.UpsertSyncSettings(ctx, in); err != nil {
		return nil, fmt.Errorf("save sync settings: %w", err)
	}
	return s.db.GetSyncSettings(ctx, in.Portal)
}

func (s *SyncService) Due(ctx context.Context) ([]*storage.SyncSettings, error) {
	return s.db.ListDueSyncSettings(ctx, s.now())
}

// MarkSynced records the outcome of a sync and schedules the next one.
func (s *SyncService) MarkSynced(ctx context.Context, settings *storage.SyncSettings, syncErr error) error {
	now := s.now()
	next := now.Add(time.Duration(settings.IntervalMinutes) * time.Minute)
	status, msg := "success", ""
	if syncErr != nil {
		status, msg = "failed", syncErr.Error()
	}
	return s.db.MarkSynced(ctx, settings.Portal, status, msg, now, next)
}

type SyncSummary struct {
	Due     int `json:"due"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Matched int `json:"matched"`
}

// RunDue syncs every due portal. A failing portal is recorded on its settings row and reported,
// it does not fail the run.
func (s *SyncService) RunDue(ctx context.Context) (SyncSummary, error) {
	var sum SyncSummary
	due, err := s.Due(ctx)
	if err != nil {
		return sum, fmt.Errorf("list due portals: %w", err)
	}
	sum.Due = len(due)
	for _, st := range due {
		matched, syncErr := s.syncer.SyncPortal(ctx, st.Portal)
		if syncErr != nil {
			sum.Failed++
			log.Printf("[PortalSync] %s failed: %v", st.Portal, syncErr)
			s.notifyFailure(ctx, st.Portal, syncErr)
		} else {
			sum.Synced++
			sum.Matched += matched
			log.Printf("[PortalSync] %s synced, %d matches", st.Portal, matched)
		}
		if err := s.MarkSynced(ctx, st, syncErr); err != nil {
			return sum, fmt.Errorf("mark %s synced: %w", st.Portal, err)
		}
	}
	return sum, nil
}

// Handler adapts RunDue to the portal_sync task.
func (s *SyncService) Handler() Handler {
	return func(ctx context.Context, _ *storage.ScheduledTask) error {
		_, err := s.RunDue(ctx)
		return err
	}
}

func (s *SyncService) notifyFailure(ctx context.Context, portal string, syncErr error) {
	if s.notifier == nil || s.opsUser == "" {
		return
	}
	err := s.notifier.Notify(ctx, &storage.Notification{
		UserID:  s.opsUser,
		Type:    "sync_failed",
		Title:   fmt.Sprintf("Portal sync %s failed", portal),
		Message: syncErr.Error(),
		Data:    map[string]any{"portal": portal},
	})
	if err != nil {
		log.Printf("[PortalSync] notify failure of %s: %v", portal, err)
	}
}
