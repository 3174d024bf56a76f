package cascade

import "time"

// sendBackoff is the per-send retry schedule for a single text or voice
// placement within a stage (§4.4: "base 500 ms, factor 2, max 8 s").
// Deliberately distinct from the retrieved QuoteJob.calculateBackoff's
// 5s/15s/60s schedule, which paces a whole job's re-attempt rather than
// one send's immediate retry within an already-scheduled stage.
const (
	sendBackoffBase    = 500 * time.Millisecond
	sendBackoffFactor  = 2
	sendBackoffMax     = 8 * time.Second
	sendMaxAttempts    = 3
)

// sendBackoffDelay returns the delay before the given 1-indexed attempt
// (attempt 1 is the first retry after an initial failure).
func sendBackoffDelay(attempt int) time.Duration {
	d := sendBackoffBase
	for i := 1; i < attempt; i++ {
		d *= sendBackoffFactor
		if d > sendBackoffMax {
			return sendBackoffMax
		}
	}
	return d
}

// waveDelayMinutes implements the wave delay schedule (§4.4): D is a
// function of H, the hours remaining until the shift's scheduledAt at
// release time.
func waveDelayMinutes(hoursUntilShift float64) int {
	switch {
	case hoursUntilShift <= 2:
		return 10
	case hoursUntilShift <= 3:
		return 15
	case hoursUntilShift <= 4:
		return 20
	case hoursUntilShift <= 5:
		return 25
	default:
		return 30
	}
}

// waveSchedule returns the three wave offsets (minutes from release) per
// §4.4: t0=0, t1=D, t2=2D.
func waveSchedule(hoursUntilShift float64) []int {
	d := waveDelayMinutes(hoursUntilShift)
	return []int{0, d, 2 * d}
}
