package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftline/shiftline/internal/apperrors"
	"github.com/shiftline/shiftline/internal/clock"
	"github.com/shiftline/shiftline/internal/voice"
)

// Messenger is the subset of internal/messaging.Client the Coordinator
// needs, narrowed to an interface so the Text-Wave Processor can be
// exercised against a fake in tests.
type Messenger interface {
	Send(ctx context.Context, to, body string) (bool, error)
}

// VoiceOfferer is the subset of internal/voice.Client the Coordinator needs.
type VoiceOfferer interface {
	PlaceOffer(ctx context.Context, req voice.OfferRequest) (voice.OfferResult, error)
}

// Config tunes the coordinator's poll cadence and per-offer timeout.
type Config struct {
	PollInterval   time.Duration
	MaxVoiceRounds int
	OfferTimeout   time.Duration
	LinkBaseURL    string
}

// DefaultConfig mirrors the defaults named in §4.4/§9.
func DefaultConfig() Config {
	return Config{
		PollInterval:   2 * time.Second,
		MaxVoiceRounds: 2,
		OfferTimeout:   30 * time.Second,
	}
}

// Coordinator implements the Notification Cascade Coordinator (§4.4): the
// worker-pool-plus-poll-loop shape is grounded on the retrieved
// QuoteJobProcessor (runLoop ticker dispatching to a worker pool), adapted
// from a single generic job type to the cascade's two distinct stage
// kinds and its own cancellation/idempotency rules rather than the
// teacher's per-job MaxAttempts retry.
type Coordinator struct {
	queue     JobQueue
	shifts    ShiftWriter
	pool      WorkerPool
	messenger Messenger
	voiceCli  VoiceOfferer
	clock     clock.Clock
	logger    *slog.Logger
	cfg       Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires a Coordinator from its collaborators.
func New(queue JobQueue, shifts ShiftWriter, pool WorkerPool, messenger Messenger, voiceCli VoiceOfferer, clk clock.Clock, logger *slog.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxVoiceRounds <= 0 {
		cfg.MaxVoiceRounds = DefaultConfig().MaxVoiceRounds
	}
	if cfg.OfferTimeout <= 0 {
		cfg.OfferTimeout = DefaultConfig().OfferTimeout
	}
	return &Coordinator{
		queue: queue, shifts: shifts, pool: pool,
		messenger: messenger, voiceCli: voiceCli, clock: clk, logger: logger, cfg: cfg,
		stopCh: make(chan struct{}),
	}
}

// Start launches the poll loop as a background goroutine.
func (c *Coordinator) Start(shiftIDs ShiftIDSource) {
	c.wg.Add(1)
	go c.runLoop(shiftIDs)
}

// Stop signals the poll loop to exit and waits for it.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// ShiftIDSource lists the shift ids with an active cascade, so the poll
// loop knows which per-shift sorted sets to check. Backed in production
// by a small Redis set the Coordinator itself maintains; kept as an
// interface so tests can supply a fixed list.
type ShiftIDSource interface {
	ActiveShiftIDs(ctx context.Context) ([]string, error)
}

func (c *Coordinator) runLoop(shiftIDs ShiftIDSource) {
	defer c.wg.Done()
	ticker := c.clock.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C():
			c.pollOnce(shiftIDs)
		}
	}
}

func (c *Coordinator) pollOnce(shiftIDs ShiftIDSource) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := shiftIDs.ActiveShiftIDs(ctx)
	if err != nil {
		c.logger.Error("listing active cascades failed", "error", err)
		return
	}
	for _, shiftID := range ids {
		due, err := c.queue.DueJobs(ctx, shiftID, c.clock.Now())
		if err != nil {
			c.logger.Error("listing due cascade jobs failed", "shift_id", shiftID, "error", err)
			continue
		}
		for _, job := range due {
			c.processJob(ctx, job)
		}
	}
}

// Release implements session.CascadeReleaser (§4.4 contract step 1-2).
// releaseAttemptId makes Release idempotent (§8: "Cascade Release with the
// same (shiftId, releaseAttemptId) is a no-op on the second invocation"): if
// a Plan is already active for shiftID — from this attempt id or any other,
// since at most one Cascade may be active per shift — Release returns nil
// without touching the shift, the pool, or the job queue.
func (c *Coordinator) Release(ctx context.Context, shiftID, releasingWorkerID, reason, releaseAttemptId string) error {
	existing, ok, err := c.queue.LoadPlan(ctx, shiftID)
	if err != nil {
		return fmt.Errorf("cascade: checking existing plan for %s: %w", shiftID, err)
	}
	if ok && existing.CurrentPhase != PhaseTerminal {
		c.logger.Info("cascade release: plan already active, skipping duplicate release",
			"shift_id", shiftID, "release_attempt_id", releaseAttemptId, "existing_attempt_id", existing.ReleaseAttemptID)
		return nil
	}

	_, providerID, scheduledAt, _, err := c.shifts.ShiftByID(ctx, shiftID)
	if err != nil {
		return fmt.Errorf("cascade: resolving shift %s: %w", shiftID, err)
	}

	if err := c.shifts.MarkOpen(ctx, shiftID); err != nil {
		return fmt.Errorf("cascade: marking shift %s open: %w", shiftID, err)
	}

	workers, err := c.pool.EligibleWorkers(ctx, providerID, []string{releasingWorkerID})
	if err != nil {
		return apperrors.WrapWithOp(err, "cascade.Release")
	}

	pool := make([]string, 0, len(workers))
	for _, w := range workers {
		pool = append(pool, w.ID)
	}

	hours := scheduledAt.Sub(c.clock.Now()).Hours()
	if hours < 0 {
		hours = 0
	}
	schedule := waveSchedule(hours)

	plan := Plan{
		ShiftID:          shiftID,
		ReleaseAttemptID: releaseAttemptId,
		Pool:             pool,
		WaveSchedule:     schedule,
		MaxVoiceRounds:   c.cfg.MaxVoiceRounds,
		CurrentPhase:     PhaseTextWave,
		ReleasedAt:       c.clock.Now(),
	}
	if err := c.queue.SavePlan(ctx, plan); err != nil {
		return fmt.Errorf("cascade: saving plan for %s: %w", shiftID, err)
	}

	now := c.clock.Now()
	for i, offsetMinutes := range schedule {
		job := Job{
			HandleID:  uuid.New().String(),
			ShiftID:   shiftID,
			Kind:      JobKindTextWave,
			WaveIndex: i + 1,
			DueAt:     now.Add(time.Duration(offsetMinutes) * time.Minute),
		}
		if err := c.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("cascade: enqueuing wave %d for %s: %w", i+1, shiftID, err)
		}
	}

	c.logger.Info("cascade released", "shift_id", shiftID, "pool_size", len(pool), "reason", reason)
	return nil
}

// processJob re-checks shift status on entry (idempotency, §4.4) and
// dispatches to the matching stage handler.
func (c *Coordinator) processJob(ctx context.Context, job Job) {
	_, _, _, status, err := c.shifts.ShiftByID(ctx, job.ShiftID)
	if err != nil {
		c.logger.Error("cascade job: resolving shift failed", "shift_id", job.ShiftID, "error", err)
		return
	}
	if status != "Open" {
		c.logger.Debug("cascade job: shift no longer open, skipping", "shift_id", job.ShiftID, "status", status)
		return
	}

	switch job.Kind {
	case JobKindTextWave:
		c.runTextWave(ctx, job)
	case JobKindVoiceOffer:
		c.runVoiceOffer(ctx, job)
	}
}
