package cascade

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// runTextWave implements the Text-Wave Processor for one wave (§4.4 step
// 2): one text per eligible worker, best-effort concurrent within the
// wave — their relative delivery order is not guaranteed.
func (c *Coordinator) runTextWave(ctx context.Context, job Job) {
	plan, ok, err := c.queue.LoadPlan(ctx, job.ShiftID)
	if err != nil || !ok {
		c.logger.Error("text wave: loading plan failed", "shift_id", job.ShiftID, "error", err)
		return
	}

	shift, _, _, _, err := c.shifts.ShiftByID(ctx, job.ShiftID)
	if err != nil {
		c.logger.Error("text wave: resolving shift failed", "shift_id", job.ShiftID, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, workerID := range plan.Pool {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			c.sendOneText(ctx, job.ShiftID, job.WaveIndex, shift, workerID)
		}(workerID)
	}
	wg.Wait()

	if job.WaveIndex < len(plan.WaveSchedule) {
		return // later waves are already enqueued; nothing else to do
	}

	// Final wave completed: if the shift is still open, move to the
	// voice-offer phase (or terminate if no voice rounds configured).
	_, _, _, status, err := c.shifts.ShiftByID(ctx, job.ShiftID)
	if err != nil {
		c.logger.Error("text wave: re-checking shift status failed", "shift_id", job.ShiftID, "error", err)
		return
	}
	if status != "Open" {
		return
	}

	if plan.MaxVoiceRounds <= 0 {
		if err := c.shifts.MarkUnfilledAfterText(ctx, job.ShiftID); err != nil {
			c.logger.Error("text wave: marking unfilled-after-text failed", "shift_id", job.ShiftID, "error", err)
		}
		return
	}

	plan.CurrentPhase = PhaseVoiceCalls
	if err := c.queue.SavePlan(ctx, plan); err != nil {
		c.logger.Error("text wave: saving plan transition failed", "shift_id", job.ShiftID, "error", err)
		return
	}
	round1 := Job{
		HandleID:   uuid.New().String(),
		ShiftID:    job.ShiftID,
		Kind:       JobKindVoiceOffer,
		RoundIndex: 1,
		DueAt:      c.clock.Now(),
	}
	if err := c.queue.Enqueue(ctx, round1); err != nil {
		c.logger.Error("text wave: enqueuing first voice round failed", "shift_id", job.ShiftID, "error", err)
	}
}

// sendOneText sends to one worker with the per-send retry schedule
// (§4.4 failure semantics); a permanent failure skips the worker for this
// wave only.
func (c *Coordinator) sendOneText(ctx context.Context, shiftID string, waveIndex int, shift ShiftSummary, workerID string) {
	worker, phone, err := c.workerContact(ctx, shiftID, workerID)
	if err != nil || phone == "" {
		return
	}
	body := textBody(shift, waveIndex, c.cfg.LinkBaseURL, shiftID, workerID)

	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		_, err := c.messenger.Send(ctx, phone, body)
		if err == nil {
			return
		}
		c.logger.Warn("text wave: send failed", "shift_id", shiftID, "worker_id", worker, "attempt", attempt, "error", err)
		if attempt < sendMaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(sendBackoffDelay(attempt)):
			}
		}
	}
	c.logger.Debug("text wave: permanently failed for worker, skipping wave", "shift_id", shiftID, "worker_id", worker)
}

// workerContact resolves a pool member id's phone number for this wave.
// The pool member ids the Release step stored are resolved against the
// WorkerPool once more here rather than carried in the Plan, so a number
// change between release and a later wave is picked up automatically.
func (c *Coordinator) workerContact(ctx context.Context, shiftID, workerID string) (string, string, error) {
	_, providerID, _, _, err := c.shifts.ShiftByID(ctx, shiftID)
	if err != nil {
		return workerID, "", err
	}
	workers, err := c.pool.EligibleWorkers(ctx, providerID, nil)
	if err != nil {
		return workerID, "", err
	}
	for _, w := range workers {
		if w.ID == workerID {
			return w.ID, w.Phone, nil
		}
	}
	return workerID, "", nil
}
