package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

type memoryJob struct {
	Job
	status        string
	nextAttemptAt time.Time
	lastError     string
}

// MemoryQueue is an in-memory Queue for tests.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*memoryJob
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, notificationID id.NotificationID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, &memoryJob{
		Job:    Job{ID: uuid.New(), NotificationID: notificationID},
		status: "queued",
	})
	return nil
}

func (q *MemoryQueue) ClaimNext(ctx context.Context) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, j := range q.jobs {
		if j.status == "queued" && !j.nextAttemptAt.After(now) {
			j.status = "running"
			j.Attempts++
			return j.Job, true, nil
		}
	}
	return Job{}, false, nil
}

func (q *MemoryQueue) MarkSent(ctx context.Context, jobID uuid.UUID) error {
	return q.setStatus(jobID, "sent", time.Time{}, "")
}

func (q *MemoryQueue) Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time, reason string) error {
	return q.setStatus(jobID, "queued", at, reason)
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, jobID uuid.UUID, reason string) error {
	return q.setStatus(jobID, "failed", time.Time{}, reason)
}

func (q *MemoryQueue) setStatus(jobID uuid.UUID, status string, at time.Time, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID == jobID {
			j.status = status
			j.nextAttemptAt = at
			j.lastError = reason
			return nil
		}
	}
	return nil
}

// StatusCounts reports job counts by status, for test assertions.
func (q *MemoryQueue) StatusCounts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]int)
	for _, j := range q.jobs {
		out[j.status]++
	}
	return out
}
