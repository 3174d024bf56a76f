// Package cascade implements the Notification Cascade Coordinator (§4.4):
// text-wave then voice-offer release of a shift to its eligible worker
// pool, with idempotent, cancellable job handles.
package cascade

import "time"

// JobKind distinguishes a text-wave send from a voice-offer round.
type JobKind string

const (
	JobKindTextWave   JobKind = "text-wave"
	JobKindVoiceOffer JobKind = "voice-offer"
)

// Job is the concrete Queue payload backing a CascadePlan's pending
// handles (§3a). Grounded on the retrieved QuoteJob shape (attempt
// bookkeeping, scheduled-at timestamp), adapted: a cascade stage fires at
// most once — there is no job-level MaxAttempts/backoff here, only the
// dedicated per-send retry helper a stage's handler calls internally.
type Job struct {
	HandleID   string    `json:"handle_id"`
	ShiftID    string    `json:"shift_id"`
	Kind       JobKind   `json:"kind"`
	WaveIndex  int       `json:"wave_index,omitempty"`
	RoundIndex int       `json:"round_index,omitempty"`
	DueAt      time.Time `json:"due_at"`
}

// PlanPhase is CascadePlan.currentPhase (§3).
type PlanPhase string

const (
	PhaseTextWave    PlanPhase = "text-wave"
	PhaseVoiceCalls  PlanPhase = "voice-calls"
	PhaseTerminal    PlanPhase = "terminal"
)

// Plan is the persisted CascadePlan for one released shift (§3).
type Plan struct {
	ShiftID          string    `json:"shift_id"`
	ReleaseAttemptID string    `json:"release_attempt_id,omitempty"`
	Pool             []string  `json:"pool"`
	WaveSchedule     []int     `json:"wave_schedule_minutes"`
	MaxVoiceRounds   int       `json:"max_voice_rounds"`
	CurrentPhase     PlanPhase `json:"current_phase"`
	ReleasedAt       time.Time `json:"released_at"`
}

// Worker is the subset of the Worker catalog entity the cascade needs to
// place a text or a voice offer.
type Worker struct {
	ID        string
	FirstName string
	Phone     string
}

// ShiftSummary is the subset of ShiftOccurrence the cascade templates
// into a notification.
type ShiftSummary struct {
	ID               string
	PatientDisplay   string
	ScheduledAtLocal string
	Suburb           string
}
