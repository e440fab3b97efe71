package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"recruiting-ats/internal/storage"
)

// Built-in task types.
const (
	TaskPipelineDispatch = "pipeline_dispatch"
	TaskPortalSync       = "portal_sync"
	TaskRematch          = "rematch"
	TaskLockCleanup      = "lock_cleanup"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownTaskType   = errors.New("unknown task type")
)

const (
	baseBackoff = time.Minute
	maxBackoff  = time.Hour
	staleAfter  = 15 * time.Minute
)

// Handler runs one task. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, task *storage.ScheduledTask) error

type Notifier interface {
	Notify(ctx context.Context, n *storage.Notification) error
}

// Scheduler runs persisted tasks when they become due. Several instances may share one database:
// a task is claimed with a conditional update before its handler runs.
type Scheduler struct {
	db       *storage.DB
	notifier Notifier
	opsUser  string
	workerID string
	now      func() time.Time

	mu        sync.RWMutex
	handlers  map[string]Handler
	recurring map[string]time.Duration
}

// New creates a scheduler. Permanent task failures are reported to opsUser when it is set.
func New(db *storage.DB, notifier Notifier, opsUser string) *Scheduler {
	return &Scheduler{
		db:        db,
		notifier:  notifier,
		opsUser:   opsUser,
		workerID:  "scheduler-" + uuid.New().String()[:8],
		now:       time.Now,
		handlers:  make(map[string]Handler),
		recurring: make(map[string]time.Duration),
	}
}

// WithClock replaces the time source, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Register(taskType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

// RegisterRecurring registers h and makes the type reschedule itself every interval after each run.
func (s *Scheduler) RegisterRecurring(taskType string, every time.Duration, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
	s.recurring[taskType] = every
}

func (s *Scheduler) handler(taskType string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[taskType]
	return h, ok
}

func (s *Scheduler) interval(taskType string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.recurring[taskType]
	return d, ok
}

// Schedule persists a new pending task. A zero runAt means now.
func (s *Scheduler) Schedule(ctx context.Context, taskType string, payload any, runAt time.Time, priority, maxAttempts int) (*storage.ScheduledTask, error) {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return nil, fmt.Errorf("%w: task type is required", storage.ErrInvalid)
	}
	if _, ok := s.handler(taskType); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	body := "{}"
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: payload: %v", storage.ErrInvalid, err)
		}
		body = string(b)
	}
	if runAt.IsZero() {
		runAt = s.now()
	}
	t := &storage.ScheduledTask{Type: taskType, Payload: body, RunAt: runAt, Priority: priority, MaxAttempts: maxAttempts}
	if err := s.db.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *Scheduler) Get(ctx context.Context, id string) (*storage.ScheduledTask, error) {
	return s.db.GetTask(ctx, id)
}

func (s *Scheduler) List(ctx context.Context, status, taskType string, limit int) ([]*storage.ScheduledTask, error) {
	return s.db.ListTasks(ctx, storage.TaskFilter{Status: status, Type: taskType, Limit: limit})
}

// Cancel cancels a pending task.
func (s *Scheduler) Cancel(ctx context.Context, id string) (*storage.ScheduledTask, error) {
	if err := s.db.CancelTask(ctx, id); err != nil {
		return nil, s.transitionErr(ctx, id, err, "cancelled")
	}
	return s.db.GetTask(ctx, id)
}

// Retry puts a failed task back to pending with a fresh attempt budget.
func (s *Scheduler) Retry(ctx context.Context, id string) (*storage.ScheduledTask, error) {
	if err := s.db.RetryTask(ctx, id, s.now()); err != nil {
		return nil, s.transitionErr(ctx, id, err, "pending")
	}
	return s.db.GetTask(ctx, id)
}

// transitionErr tells a missing task apart from one in the wrong status.
func (s *Scheduler) transitionErr(ctx context.Context, id string, err error, to string) error {
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	t, getErr := s.db.GetTask(ctx, id)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: task %s is %s, cannot move to %s", ErrInvalidTransition, id, t.Status, to)
}

// Backoff is the delay before the next attempt after attempts failed ones: 1m, 2m, 4m... capped at 1h.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		return maxBackoff
	}
	d := baseBackoff << attempts
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

type RunSummary struct {
	Due       int `json:"due"`
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// RunDue runs up to limit due tasks, highest priority first.
func (s *Scheduler) RunDue(ctx context.Context, limit int) (RunSummary, error) {
	var sum RunSummary
	tasks, err := s.db.ListDueTasks(ctx, s.now(), limit)
	if err != nil {
		return sum, fmt.Errorf("list due tasks: %w", err)
	}
	sum.Due = len(tasks)

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := s.db.ClaimTask(ctx, t.ID, s.workerID, s.now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue // another worker got it
			}
			return sum, fmt.Errorf("claim task %s: %w", t.ID, err)
		}
		sum.Claimed++

		switch s.run(ctx, t) {
		case outcomeCompleted:
			sum.Completed++
		case outcomeRetried:
			sum.Retried++
		case outcomeFailed:
			sum.Failed++
		}
	}
	if sum.Claimed > 0 {
		log.Printf("[Scheduler] %d due, %d completed, %d retried, %d failed", sum.Due, sum.Completed, sum.Retried, sum.Failed)
	}
	return sum, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRetried
	outcomeFailed
)

func (s *Scheduler) run(ctx context.Context, t *storage.ScheduledTask) outcome {
	var runErr error
	h, ok := s.handler(t.Type)
	if !ok {
		runErr = fmt.Errorf("%w: %q", ErrUnknownTaskType, t.Type)
	} else {
		runErr = safeRun(ctx, h, t)
	}

	if runErr == nil {
		if err := s.db.CompleteTask(ctx, t.ID, s.now()); err != nil {
			log.Printf("[Scheduler] complete %s: %v", t.ID, err)
		}
		s.scheduleNext(ctx, t.Type)
		return outcomeCompleted
	}

	attempts := t.Attempts + 1
	if ok && attempts < t.MaxAttempts {
		next := s.now().Add(Backoff(t.Attempts))
		if err := s.db.RescheduleTask(ctx, t.ID, runErr.Error(), next, s.now()); err != nil {
			log.Printf("[Scheduler] reschedule %s: %v", t.ID, err)
		}
		log.Printf("[Scheduler] %s %s attempt %d/%d failed, retry at %s: %v",
			t.Type, t.ID, attempts, t.MaxAttempts, next.Format(time.RFC3339), runErr)
		return outcomeRetried
	}

	if err := s.db.FailTask(ctx, t.ID, runErr.Error(), s.now()); err != nil {
		log.Printf("[Scheduler] fail %s: %v", t.ID, err)
	}
	log.Printf("[Scheduler] %s %s failed permanently after %d attempts: %v", t.Type, t.ID, attempts, runErr)
	s.notifyFailure(ctx, t, runErr)
	s.scheduleNext(ctx, t.Type)
	return outcomeFailed
}

func safeRun(ctx context.Context, h Handler, t *storage.ScheduledTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, t)
}

// scheduleNext queues the next occurrence of a recurring type unless one is already open.
func (s *Scheduler) scheduleNext(ctx context.Context, taskType string) {
	every, ok := s.interval(taskType)
	if !ok {
		return
	}
	open, err := s.db.HasOpenTask(ctx, taskType)
	if err != nil {
		log.Printf("[Scheduler] check open %s: %v", taskType, err)
		return
	}
	if open {
		return
	}
	if _, err := s.Schedule(ctx, taskType, nil, s.now().Add(every), 0, 0); err != nil {
		log.Printf("[Scheduler] schedule next %s: %v", taskType, err)
	}
}

func (s *Scheduler) notifyFailure(ctx context.Context, t *storage.ScheduledTask, runErr error) {
	if s.notifier == nil || s.opsUser == "" {
		return
	}
	err := s.notifier.Notify(ctx, &storage.Notification{
		UserID:  s.opsUser,
		Type:    "task_failed",
		Title:   fmt.Sprintf("Scheduled task %s failed", t.Type),
		Message: runErr.Error(),
		Data:    map[string]any{"task_id": t.ID, "task_type": t.Type, "attempts": t.Attempts + 1},
	})
	if err != nil {
		log.Printf("[Scheduler] notify failure of %s: %v", t.ID, err)
	}
}

type InitResult struct {
	Released int64      `json:"released"`
	Created  []string   `json:"created"`
	Run      RunSummary `json:"run"`
}

// Init releases tasks left running by a crashed worker, makes sure every recurring type has an
// open task and runs what is due.
func (s *Scheduler) Init(ctx context.Context, limit int) (*InitResult, error) {
	res := &InitResult{Created: []string{}}
	released, err := s.db.ReleaseStaleTasks(ctx, s.now().Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("release stale tasks: %w", err)
	}
	res.Released = released

	s.mu.RLock()
	types := make([]string, 0, len(s.recurring))
	for t := range s.recurring {
		types = append(types, t)
	}
	s.mu.RUnlock()

	for _, taskType := range types {
		open, err := s.db.HasOpenTask(ctx, taskType)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", taskType, err)
		}
		if open {
			continue
		}
		if _, err := s.Schedule(ctx, taskType, nil, s.now(), 0, 0); err != nil {
			return nil, err
		}
		res.Created = append(res.Created, taskType)
	}

	run, err := s.RunDue(ctx, limit)
	if err != nil {
		return nil, err
	}
	res.Run = run
	log.Printf("[Scheduler] Init: %d released, %d recurring tasks created", res.Released, len(res.Created))
	return res, nil
}

// Start runs due tasks every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, limit int) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("[Scheduler] Ticker started (every %v)", interval)
		for {
			select {
			case <-ctx.Done():
				log.Println("[Scheduler] Ticker stopped")
				return
			case <-ticker.C:
				if _, err := s.RunDue(ctx, limit); err != nil && ctx.Err() == nil {
					log.Printf("[Scheduler] run due: %v", err)
				}
			}
		}
	}()
}

// RematchPayload is the payload of a rematch task. An empty requirement id rematches every open one.
type RematchPayload struct {
	RequirementID string `json:"requirement_id,omitempty"`
}
