package matching

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job kinds handled by the background queue.
const (
	JobRequirement = "requirement"
	JobCandidate   = "candidate"
)

// Job represents a background rematch task.
type Job struct {
	Kind      string
	ID        string
	Timestamp time.Time
}

// Queue runs rematches off the request path so creating or editing a requirement or
// candidate returns immediately.
type Queue struct {
	matcher *Matcher
	jobs    chan Job
	wg      sync.WaitGroup
}

func NewQueue(m *Matcher, size int) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{matcher: m, jobs: make(chan Job, size)}
}

// Start launches the worker. It stops when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.worker(ctx)
	log.Println("[MatchQueue] Worker started")
}

// Stop closes the queue and waits for the worker to drain it. Enqueue must not be called afterwards.
func (q *Queue) Stop() {
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job Job) {
	switch job.Kind {
	case JobRequirement:
		rep, err := q.matcher.MatchRequirement(ctx, job.ID, Options{})
		if err != nil {
			log.Printf("[MatchQueue] Requirement %s failed: %v", job.ID, err)
			return
		}
		log.Printf("[MatchQueue] Requirement %s: %d matches (queued %v ago)", job.ID, rep.Matched, time.Since(job.Timestamp).Round(time.Millisecond))
	case JobCandidate:
		res, err := q.matcher.MatchCandidate(ctx, job.ID)
		if err != nil {
			log.Printf("[MatchQueue] Candidate %s failed: %v", job.ID, err)
			return
		}
		log.Printf("[MatchQueue] Candidate %s: %d matches (queued %v ago)", job.ID, len(res), time.Since(job.Timestamp).Round(time.Millisecond))
	default:
		log.Printf("[MatchQueue] Unknown job kind %q", job.Kind)
	}
}

// Enqueue adds a job without blocking. It reports false when the queue is full or nil.
func (q *Queue) Enqueue(kind, id string) bool {
	if q == nil {
		return false
	}
	job := Job{Kind: kind, ID: id, Timestamp: time.Now()}
	// Non-blocking send
	select {
	case q.jobs <- job:
		return true
	default:
		log.Printf("[MatchQueue] Queue full! Dropping %s job %s", kind, id)
		return false
	}
}
