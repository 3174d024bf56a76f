package cascade

import (
	"context"

	"github.com/google/uuid"

	"github.com/shiftline/shiftline/internal/voice"
)

// runVoiceOffer implements one full round of the Voice-Offer Processor
// (§4.4 step 3): sequential offers across the pool, halting the instant
// the shift is no longer Open. Rounds are strictly sequential — the next
// round is enqueued only after this one concludes.
func (c *Coordinator) runVoiceOffer(ctx context.Context, job Job) {
	plan, ok, err := c.queue.LoadPlan(ctx, job.ShiftID)
	if err != nil || !ok {
		c.logger.Error("voice offer: loading plan failed", "shift_id", job.ShiftID, "error", err)
		return
	}

	shift, _, _, _, err := c.shifts.ShiftByID(ctx, job.ShiftID)
	if err != nil {
		c.logger.Error("voice offer: resolving shift failed", "shift_id", job.ShiftID, "error", err)
		return
	}

	for _, workerID := range plan.Pool {
		_, _, _, status, err := c.shifts.ShiftByID(ctx, job.ShiftID)
		if err != nil {
			c.logger.Error("voice offer: re-checking shift status failed", "shift_id", job.ShiftID, "error", err)
			return
		}
		if status != "Open" {
			return // accepted (or otherwise concluded) elsewhere; halt the round
		}

		accepted, err := c.offerOneWorker(ctx, job.ShiftID, shift, workerID)
		if err != nil {
			c.logger.Warn("voice offer: placement failed", "shift_id", job.ShiftID, "worker_id", workerID, "error", err)
			continue
		}
		if accepted {
			if err := c.shifts.MarkFilled(ctx, job.ShiftID, workerID); err != nil {
				c.logger.Error("voice offer: marking filled failed", "shift_id", job.ShiftID, "error", err)
				return
			}
			if err := c.queue.CancelAll(ctx, job.ShiftID); err != nil {
				c.logger.Error("voice offer: cancelling remaining handles failed", "shift_id", job.ShiftID, "error", err)
			}
			if err := c.queue.DeletePlan(ctx, job.ShiftID); err != nil {
				c.logger.Error("voice offer: deleting plan failed", "shift_id", job.ShiftID, "error", err)
			}
			return
		}
	}

	if job.RoundIndex < plan.MaxVoiceRounds {
		next := Job{
			HandleID:   uuid.New().String(),
			ShiftID:    job.ShiftID,
			Kind:       JobKindVoiceOffer,
			RoundIndex: job.RoundIndex + 1,
			DueAt:      c.clock.Now(),
		}
		if err := c.queue.Enqueue(ctx, next); err != nil {
			c.logger.Error("voice offer: enqueuing next round failed", "shift_id", job.ShiftID, "error", err)
		}
		return
	}

	if err := c.shifts.MarkUnfilledAfterCalls(ctx, job.ShiftID); err != nil {
		c.logger.Error("voice offer: marking unfilled-after-calls failed", "shift_id", job.ShiftID, "error", err)
	}
}

// offerOneWorker places one voice offer and retries transient placement
// failures per the shared send-backoff schedule (§4.4 failure semantics).
func (c *Coordinator) offerOneWorker(ctx context.Context, shiftID string, shift ShiftSummary, workerID string) (bool, error) {
	worker, phone, err := c.workerContact(ctx, shiftID, workerID)
	if err != nil || phone == "" {
		return false, err
	}

	req := voice.OfferRequest{
		To:            phone,
		AudioScriptID: offerAudioScriptID(shift, Worker{ID: worker, Phone: phone}),
		GatherDigits:  1,
		TimeoutSec:    int(c.cfg.OfferTimeout.Seconds()),
	}

	var lastErr error
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		result, err := c.voiceCli.PlaceOffer(ctx, req)
		if err == nil {
			return result.Outcome == "answered-accept" && result.Digit == "1", nil
		}
		lastErr = err
		if attempt < sendMaxAttempts {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-c.clock.After(sendBackoffDelay(attempt)):
			}
		}
	}
	return false, lastErr
}
