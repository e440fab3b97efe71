package locks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"recruiting-ats/internal/storage"
)

var (
	// ErrLocked is wrapped by LockedError when another user holds the entity.
	ErrLocked = errors.New("entity is locked by another user")
	// ErrNotHolder is returned when the caller does not hold an active lock.
	ErrNotHolder = errors.New("no active lock held by user")
	// ErrUnknownEntity rejects entity types that cannot be locked.
	ErrUnknownEntity = errors.New("unknown entity type")
)

// LockedError reports the user currently holding the lock.
type LockedError struct {
	Holder *storage.EditingLock
}

func (e *LockedError) Error() string {
	name := e.Holder.UserName
	if name == "" {
		name = e.Holder.UserID
	}
	return fmt.Sprintf("%s %s is being edited by %s until %s",
		e.Holder.EntityType, e.Holder.EntityID, name, e.Holder.ExpiresAt.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrLocked }

var entityTypes = map[string]bool{
	"customer":    true,
	"contact":     true,
	"requirement": true,
	"candidate":   true,
	"application": true,
	"job_posting": true,
}

// ValidEntityType reports whether entityType can be locked.
func ValidEntityType(entityType string) bool {
	return entityTypes[entityType]
}

// Service coordinates editing locks. Expiry is evaluated whenever a lock is read, so a
// crashed client never blocks an entity for longer than the TTL.
type Service struct {
	db  *storage.DB
	ttl time.Duration
	now func() time.Time
}

func NewService(db *storage.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{db: db, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Acquire takes the lock for userID or returns a *LockedError naming the holder.
// Re-acquiring an own lock refreshes its expiry.
func (s *Service) Acquire(ctx context.Context, entityType, entityID, userID, userName string) (*storage.EditingLock, error) {
	if err := checkArgs(entityType, entityID, userID); err != nil {
		return nil, err
	}
	lock, ok, err := s.db.TryAcquireLock(ctx, entityType, entityID, userID, userName, s.now(), s.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, &LockedError{Holder: lock}
	}
	log.Printf("[LockService] %s locked %s/%s until %s", userID, entityType, entityID, lock.ExpiresAt.Format(time.RFC3339))
	return lock, nil
}

func (s *Service) Release(ctx context.Context, entityType, entityID, userID string) error {
	if err := checkArgs(entityType, entityID, userID); err != nil {
		return err
	}
	err := s.db.ReleaseLock(ctx, entityType, entityID, userID, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotHolder
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	log.Printf("[LockService] %s released %s/%s", userID, entityType, entityID)
	return nil
}

// Extend pushes the expiry of the caller's lock to now + TTL.
func (s *Service) Extend(ctx context.Context, entityType, entityID, userID string) (*storage.EditingLock, error) {
	if err := checkArgs(entityType, entityID, userID); err != nil {
		return nil, err
	}
	lock, err := s.db.ExtendLock(ctx, entityType, entityID, userID, s.now(), s.ttl)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotHolder
	}
	if err != nil {
		return nil, fmt.Errorf("extend lock: %w", err)
	}
	return lock, nil
}

// Status returns the active lock, or nil when the entity is free.
func (s *Service) Status(ctx context.Context, entityType, entityID string) (*storage.EditingLock, error) {
	if !ValidEntityType(entityType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entityType)
	}
	lock, err := s.db.GetActiveLock(ctx, entityType, entityID, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock status: %w", err)
	}
	return lock, nil
}

// CheckWritable returns nil when the entity is free or locked by userID.
func (s *Service) CheckWritable(ctx context.Context, entityType, entityID, userID string) error {
	lock, err := s.Status(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	if lock != nil && lock.UserID != userID {
		return &LockedError{Holder: lock}
	}
	return nil
}

func (s *Service) ForceRelease(ctx context.Context, entityType, entityID string) error {
	if !ValidEntityType(entityType) {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entityType)
	}
	err := s.db.ForceReleaseLock(ctx, entityType, entityID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotHolder
	}
	if err != nil {
		return fmt.Errorf("force release: %w", err)
	}
	log.Printf("[LockService] force released %s/%s", entityType, entityID)
	return nil
}

// ListHeld returns the active locks of userID, or every active lock when userID is empty.
func (s *Service) ListHeld(ctx context.Context, userID string) ([]*storage.EditingLock, error) {
	return s.db.ListActiveLocks(ctx, userID, s.now())
}

// CleanupExpired deactivates locks past their expiry and returns how many were cleared.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.db.ExpireLocks(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup locks: %w", err)
	}
	if n > 0 {
		log.Printf("[LockService] cleared %d expired locks", n)
	}
	return n, nil
}

func checkArgs(entityType, entityID, userID string) error {
	if !ValidEntityType(entityType) {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entityType)
	}
	if entityID == "" || userID == "" {
		return fmt.Errorf("%w: entity id and user id are required", storage.ErrInvalid)
	}
	return nil
}
