package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"recruiting-ats/internal/cache"
	"recruiting-ats/internal/config"
	"recruiting-ats/internal/cv"
	"recruiting-ats/internal/locks"
	"recruiting-ats/internal/matching"
	"recruiting-ats/internal/notify"
	"recruiting-ats/internal/portal"
	"recruiting-ats/internal/queue"
	"recruiting-ats/internal/scheduler"
	"recruiting-ats/internal/storage"
)

// Intervals of the recurring scheduler tasks.
const (
	dispatchEvery    = time.Minute
	lockCleanupEvery = 5 * time.Minute
	portalSyncEvery  = 5 * time.Minute
)

// App holds every service of the backend, wired to one database.
type App struct {
	Config *config.Config
	DB     *storage.DB

	Cache         *cache.Tiered
	Portal        *portal.Client
	Locks         *locks.Service
	Hub           *notify.Hub
	Notify        *notify.Service
	Matcher       *matching.Matcher
	PortalMatcher *matching.PortalMatcher
	MatchQueue    *matching.Queue
	Publisher     queue.Publisher
	Scheduler     *scheduler.Scheduler
	Pipeline      *scheduler.Pipeline
	Sync          *scheduler.SyncService
	Parser        *cv.Parser

	rabbit *queue.RabbitMQ
}

// New wires the services. Redis and RabbitMQ are optional: when their URL is empty or the
// connection fails the app runs with the in-process cache and the log-only publisher.
func New(ctx context.Context, cfg *config.Config, db *storage.DB) *App {
	a := &App{Config: cfg, DB: db}

	a.Cache = cache.New("ats:portal", cfg.PortalCacheTTL, 1000)
	if cfg.RedisURL != "" {
		if err := a.Cache.ConnectRedis(ctx, cfg.RedisURL); err != nil {
			log.Printf("Warning: %v, portal cache stays in-process", err)
		}
	}
	a.Portal = portal.NewClient(cfg.PortalBaseURL, cfg.PortalAPIKey, cfg.PortalRatePerSec, a.Cache)

	a.Locks = locks.NewService(db, cfg.LockTTL)
	a.Hub = notify.NewHub(32)
	a.Notify = notify.NewService(db, a.Hub)

	a.Matcher = matching.NewMatcher(db, a.Notify, matching.Config{
		Weights:          matching.DefaultWeights,
		DefaultThreshold: cfg.MatchThreshold,
		NotifyScore:      cfg.NotifyMatchScore,
	})
	a.PortalMatcher = matching.NewPortalMatcher(a.Matcher, a.Portal)
	a.MatchQueue = matching.NewQueue(a.Matcher, 100)

	a.Publisher = queue.LogPublisher{}
	if cfg.RabbitMQURL != "" {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, cfg.PipelineQueue, cfg.PipelineResultQueue)
		if err != nil {
			log.Printf("Warning: %v, pipeline dispatch is logged only", err)
		} else {
			a.rabbit = rmq
			a.Publisher = rmq
		}
	}

	a.Scheduler = scheduler.New(db, a.Notify, cfg.OpsUserID)
	a.Pipeline = scheduler.NewPipeline(db, a.Publisher, a.Notify, cfg.OpsUserID)
	a.Sync = scheduler.NewSyncService(db, a.PortalMatcher, a.Notify, cfg.OpsUserID)
	a.Parser = cv.NewParser(cfg.UploadsDir)

	a.registerTasks()
	return a
}

func (a *App) registerTasks() {
	batch := a.Config.SchedulerBatch

	a.Scheduler.RegisterRecurring(scheduler.TaskPipelineDispatch, dispatchEvery, func(ctx context.Context, _ *storage.ScheduledTask) error {
		_, err := a.Pipeline.DispatchDue(ctx, batch)
		return err
	})
	a.Scheduler.RegisterRecurring(scheduler.TaskLockCleanup, lockCleanupEvery, func(ctx context.Context, _ *storage.ScheduledTask) error {
		_, err := a.Locks.CleanupExpired(ctx)
		if n := a.Cache.CleanExpired(); n > 0 {
			log.Printf("[Cache] cleaned %d expired entries", n)
		}
		return err
	})
	a.Scheduler.RegisterRecurring(scheduler.TaskPortalSync, portalSyncEvery, a.Sync.Handler())
	a.Scheduler.Register(scheduler.TaskRematch, func(ctx context.Context, t *storage.ScheduledTask) error {
		var p scheduler.RematchPayload
		if err := json.Unmarshal([]byte(t.Payload), &p); err != nil {
			return fmt.Errorf("rematch payload: %w", err)
		}
		if p.RequirementID != "" {
			_, err := a.Matcher.MatchRequirement(ctx, p.RequirementID, matching.Options{})
			return err
		}
		_, err := a.Matcher.MatchAllOpen(ctx, 0)
		return err
	})
}

// Start launches the background workers: the match queue, the RabbitMQ result consumer and,
// when configured, the scheduler ticker. They stop with ctx.
func (a *App) Start(ctx context.Context) error {
	a.MatchQueue.Start(ctx)

	if a.rabbit != nil {
		err := a.rabbit.ConsumeResults(ctx, func(ctx context.Context, res queue.DispatchResult) error {
			_, err := a.Pipeline.CompleteDispatch(ctx, res)
			return err
		})
		if err != nil {
			return err
		}
	}

	if a.Config.SchedulerInterval > 0 {
		a.Scheduler.Start(ctx, a.Config.SchedulerInterval, a.Config.SchedulerBatch)
	}
	return nil
}

// Close stops the match queue and releases broker and cache connections.
func (a *App) Close() {
	a.MatchQueue.Stop()
	if err := a.Publisher.Close(); err != nil {
		log.Printf("Error closing publisher: %v", err)
	}
	if err := a.Cache.Close(); err != nil {
		log.Printf("Error closing cache: %v", err)
	}
}
