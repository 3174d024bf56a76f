package cascade

import (
	"context"
	"time"
)

// ShiftWriter is the write-through view of the catalog the Coordinator
// needs: resolving a shift's scheduling context and recording the status
// transitions the cascade drives (§3's ShiftOccurrence lifecycle).
type ShiftWriter interface {
	ShiftByID(ctx context.Context, shiftID string) (ShiftSummary, providerID string, scheduledAt time.Time, status string, err error)
	MarkOpen(ctx context.Context, shiftID string) error
	MarkFilled(ctx context.Context, shiftID, workerID string) error
	MarkUnfilledAfterText(ctx context.Context, shiftID string) error
	MarkUnfilledAfterCalls(ctx context.Context, shiftID string) error
}

// WorkerPool resolves the eligible pool of workers for a provider,
// excluding the releasing worker and anyone who already declined or was
// previously assigned (§4.4 step 1).
type WorkerPool interface {
	EligibleWorkers(ctx context.Context, providerID string, exclude []string) ([]Worker, error)
}

// JobQueue is the subset of *Queue the Coordinator needs, narrowed to an
// interface so the poll loop and stage handlers can be exercised against
// an in-memory fake in tests rather than a live Redis instance.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	DueJobs(ctx context.Context, shiftID string, now time.Time) ([]Job, error)
	CancelAll(ctx context.Context, shiftID string) error
	SavePlan(ctx context.Context, plan Plan) error
	LoadPlan(ctx context.Context, shiftID string) (Plan, bool, error)
	DeletePlan(ctx context.Context, shiftID string) error
}
