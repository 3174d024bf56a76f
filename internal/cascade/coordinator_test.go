package cascade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shiftline/shiftline/internal/clock"
	"github.com/shiftline/shiftline/internal/voice"
)

// fakeQueue is a mutex-guarded in-memory JobQueue, grounded on the
// retrieved pack's MockQuoteJobRepository shape (map + RWMutex, no real
// persistence) so the Coordinator can be exercised without a live Redis.
type fakeQueue struct {
	mu    sync.Mutex
	jobs  map[string][]Job
	plans map[string]Plan
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string][]Job), plans: make(map[string]Plan)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[job.ShiftID] = append(q.jobs[job.ShiftID], job)
	return nil
}

func (q *fakeQueue) DueJobs(ctx context.Context, shiftID string, now time.Time) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due, remaining []Job
	for _, j := range q.jobs[shiftID] {
		if !j.DueAt.After(now) {
			due = append(due, j)
		} else {
			remaining = append(remaining, j)
		}
	}
	q.jobs[shiftID] = remaining
	return due, nil
}

func (q *fakeQueue) CancelAll(ctx context.Context, shiftID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, shiftID)
	return nil
}

func (q *fakeQueue) SavePlan(ctx context.Context, plan Plan) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.plans[plan.ShiftID] = plan
	return nil
}

func (q *fakeQueue) LoadPlan(ctx context.Context, shiftID string) (Plan, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	plan, ok := q.plans[shiftID]
	return plan, ok, nil
}

func (q *fakeQueue) DeletePlan(ctx context.Context, shiftID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.plans, shiftID)
	return nil
}

// fakeShifts is a mutex-guarded in-memory ShiftWriter.
type fakeShifts struct {
	mu          sync.RWMutex
	status      map[string]string
	filled      map[string]string
	providerID  string
	scheduledAt time.Time
	shift       ShiftSummary
}

func newFakeShifts() *fakeShifts {
	return &fakeShifts{status: make(map[string]string), filled: make(map[string]string)}
}

func (f *fakeShifts) ShiftByID(ctx context.Context, shiftID string) (ShiftSummary, string, time.Time, string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.shift, f.providerID, f.scheduledAt, f.status[shiftID], nil
}
func (f *fakeShifts) MarkOpen(ctx context.Context, shiftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[shiftID] = "Open"
	return nil
}
func (f *fakeShifts) MarkFilled(ctx context.Context, shiftID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[shiftID] = "Filled"
	f.filled[shiftID] = workerID
	return nil
}
func (f *fakeShifts) MarkUnfilledAfterText(ctx context.Context, shiftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[shiftID] = "UnfilledAfterText"
	return nil
}
func (f *fakeShifts) MarkUnfilledAfterCalls(ctx context.Context, shiftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[shiftID] = "UnfilledAfterCalls"
	return nil
}

type fakePool struct {
	workers []Worker
}

func (f *fakePool) EligibleWorkers(ctx context.Context, providerID string, exclude []string) ([]Worker, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var out []Worker
	for _, w := range f.workers {
		if !excluded[w.ID] {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMessenger) Send(ctx context.Context, to, body string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return true, nil
}

type fakeVoice struct {
	mu     sync.Mutex
	calls  []string
	accept map[string]bool
}

func (f *fakeVoice) PlaceOffer(ctx context.Context, req voice.OfferRequest) (voice.OfferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.To)
	if f.accept[req.To] {
		return voice.OfferResult{Outcome: "answered-accept", Digit: "1"}, nil
	}
	return voice.OfferResult{Outcome: "answered-decline", Digit: "2"}, nil
}

func TestRelease_EnqueuesThreeTextWaves(t *testing.T) {
	queue := newFakeQueue()
	shifts := newFakeShifts()
	shifts.providerID = "p1"
	clk := clock.NewMock(time.Now())
	shifts.scheduledAt = clk.Now().Add(6 * time.Hour)
	shifts.shift = ShiftSummary{ID: "s1", PatientDisplay: "Alice B.", ScheduledAtLocal: "Aug 1 10:00AM"}
	pool := &fakePool{workers: []Worker{{ID: "w1", Phone: "+15550000001"}, {ID: "w2", Phone: "+15550000002"}}}
	messenger := &fakeMessenger{}
	voiceCli := &fakeVoice{accept: map[string]bool{}}

	coord := New(queue, shifts, pool, messenger, voiceCli, clk, nil, DefaultConfig())

	if err := coord.Release(context.Background(), "s1", "releasing-worker", "no longer available", "attempt-1"); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	plan, ok, err := queue.LoadPlan(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("expected a saved plan, err=%v ok=%v", err, ok)
	}
	if len(plan.WaveSchedule) != 3 {
		t.Fatalf("expected 3 wave offsets, got %v", plan.WaveSchedule)
	}
	if plan.WaveSchedule[0] != 0 {
		t.Errorf("expected wave 1 offset 0, got %d", plan.WaveSchedule[0])
	}

	due, err := queue.DueJobs(context.Background(), "s1", clk.Now())
	if err != nil {
		t.Fatalf("DueJobs() error: %v", err)
	}
	if len(due) != 1 || due[0].WaveIndex != 1 {
		t.Fatalf("expected only wave 1 due at t0, got %+v", due)
	}
}

func TestRelease_DuplicateAttemptIsNoOp(t *testing.T) {
	queue := newFakeQueue()
	shifts := newFakeShifts()
	shifts.providerID = "p1"
	clk := clock.NewMock(time.Now())
	shifts.scheduledAt = clk.Now().Add(6 * time.Hour)
	shifts.shift = ShiftSummary{ID: "s1", PatientDisplay: "Alice B.", ScheduledAtLocal: "Aug 1 10:00AM"}
	pool := &fakePool{workers: []Worker{{ID: "w1", Phone: "+15550000001"}}}
	messenger := &fakeMessenger{}
	voiceCli := &fakeVoice{accept: map[string]bool{}}

	coord := New(queue, shifts, pool, messenger, voiceCli, clk, nil, DefaultConfig())

	if err := coord.Release(context.Background(), "s1", "releasing-worker", "no longer available", "attempt-1"); err != nil {
		t.Fatalf("first Release() error: %v", err)
	}
	firstPlan, _, err := queue.LoadPlan(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}

	// Same shift, same attempt id: a replayed webhook or re-processed input
	// token must not enqueue a second wave of jobs or touch the plan.
	if err := coord.Release(context.Background(), "s1", "releasing-worker", "no longer available", "attempt-1"); err != nil {
		t.Fatalf("duplicate Release() error: %v", err)
	}
	// Different attempt id for the same still-active shift must also be a
	// no-op: at most one Cascade may be active per shift.
	if err := coord.Release(context.Background(), "s1", "releasing-worker", "no longer available", "attempt-2"); err != nil {
		t.Fatalf("second-attempt-id Release() error: %v", err)
	}

	secondPlan, ok, err := queue.LoadPlan(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("expected plan to remain, err=%v ok=%v", err, ok)
	}
	if secondPlan.ReleaseAttemptID != firstPlan.ReleaseAttemptID {
		t.Fatalf("plan was replaced by a later Release() call: got attempt id %q, want %q", secondPlan.ReleaseAttemptID, firstPlan.ReleaseAttemptID)
	}

	due, err := queue.DueJobs(context.Background(), "s1", clk.Now())
	if err != nil {
		t.Fatalf("DueJobs() error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected only the original wave 1 job, got %d due jobs: %+v", len(due), due)
	}
}

func TestProcessJob_TextWaveSendsToEveryPoolMember(t *testing.T) {
	queue := newFakeQueue()
	shifts := newFakeShifts()
	shifts.status["s1"] = "Open"
	shifts.shift = ShiftSummary{ID: "s1", PatientDisplay: "Bob C.", ScheduledAtLocal: "Aug 1 10:00AM"}
	pool := &fakePool{workers: []Worker{{ID: "w1", Phone: "+15550000001"}, {ID: "w2", Phone: "+15550000002"}}}
	messenger := &fakeMessenger{}
	voiceCli := &fakeVoice{accept: map[string]bool{}}
	clk := clock.NewMock(time.Now())

	coord := New(queue, shifts, pool, messenger, voiceCli, clk, nil, DefaultConfig())
	if err := queue.SavePlan(context.Background(), Plan{
		ShiftID: "s1", Pool: []string{"w1", "w2"}, WaveSchedule: []int{0, 10, 20}, MaxVoiceRounds: 2,
	}); err != nil {
		t.Fatal(err)
	}

	coord.processJob(context.Background(), Job{ShiftID: "s1", Kind: JobKindTextWave, WaveIndex: 1})

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	if len(messenger.sent) != 2 {
		t.Fatalf("expected 2 texts sent, got %d", len(messenger.sent))
	}
}

func TestProcessJob_SkipsWhenShiftNoLongerOpen(t *testing.T) {
	queue := newFakeQueue()
	shifts := newFakeShifts()
	shifts.status["s1"] = "Filled"
	shifts.shift = ShiftSummary{ID: "s1"}
	pool := &fakePool{}
	messenger := &fakeMessenger{}
	voiceCli := &fakeVoice{accept: map[string]bool{}}
	clk := clock.NewMock(time.Now())

	coord := New(queue, shifts, pool, messenger, voiceCli, clk, nil, DefaultConfig())
	if err := queue.SavePlan(context.Background(), Plan{ShiftID: "s1", Pool: []string{"w1"}, WaveSchedule: []int{0, 10, 20}, MaxVoiceRounds: 2}); err != nil {
		t.Fatal(err)
	}

	coord.processJob(context.Background(), Job{ShiftID: "s1", Kind: JobKindTextWave, WaveIndex: 1})

	messenger.mu.Lock()
	defer messenger.mu.Unlock()
	if len(messenger.sent) != 0 {
		t.Errorf("expected no texts sent once the shift left Open, got %d", len(messenger.sent))
	}
}

func TestRunVoiceOffer_AcceptMarksFilledAndCancelsRemaining(t *testing.T) {
	queue := newFakeQueue()
	shifts := newFakeShifts()
	shifts.status["s1"] = "Open"
	shifts.shift = ShiftSummary{ID: "s1", PatientDisplay: "Carl D.", ScheduledAtLocal: "Aug 1 10:00AM"}
	pool := &fakePool{workers: []Worker{{ID: "w1", Phone: "+15550000001"}, {ID: "w2", Phone: "+15550000002"}}}
	messenger := &fakeMessenger{}
	voiceCli := &fakeVoice{accept: map[string]bool{"+15550000002": true}}
	clk := clock.NewMock(time.Now())

	coord := New(queue, shifts, pool, messenger, voiceCli, clk, nil, DefaultConfig())
	if err := queue.SavePlan(context.Background(), Plan{
		ShiftID: "s1", Pool: []string{"w1", "w2"}, WaveSchedule: []int{0, 10, 20}, MaxVoiceRounds: 2,
	}); err != nil {
		t.Fatal(err)
	}
	if err := queue.Enqueue(context.Background(), Job{HandleID: "h2", ShiftID: "s1", Kind: JobKindVoiceOffer, RoundIndex: 2, DueAt: clk.Now()}); err != nil {
		t.Fatal(err)
	}

	coord.runVoiceOffer(context.Background(), Job{ShiftID: "s1", Kind: JobKindVoiceOffer, RoundIndex: 1})

	_, _, _, status, _ := shifts.ShiftByID(context.Background(), "s1")
	if status != "Filled" {
		t.Fatalf("expected status Filled, got %s", status)
	}
	if shifts.filled["s1"] != "w2" {
		t.Errorf("expected w2 to fill the shift (it accepted), got %s", shifts.filled["s1"])
	}

	due, err := queue.DueJobs(context.Background(), "s1", clk.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("expected the pre-enqueued round 2 job to be cancelled, found %d due jobs", len(due))
	}
}

func TestRunVoiceOffer_ExhaustionMarksUnfilledAfterCalls(t *testing.T) {
	queue := newFakeQueue()
	shifts := newFakeShifts()
	shifts.status["s1"] = "Open"
	shifts.shift = ShiftSummary{ID: "s1", PatientDisplay: "Dee E.", ScheduledAtLocal: "Aug 1 10:00AM"}
	pool := &fakePool{workers: []Worker{{ID: "w1", Phone: "+15550000001"}}}
	messenger := &fakeMessenger{}
	voiceCli := &fakeVoice{accept: map[string]bool{}}
	clk := clock.NewMock(time.Now())

	coord := New(queue, shifts, pool, messenger, voiceCli, clk, nil, Config{MaxVoiceRounds: 1, OfferTimeout: time.Second})
	if err := queue.SavePlan(context.Background(), Plan{
		ShiftID: "s1", Pool: []string{"w1"}, WaveSchedule: []int{0, 10, 20}, MaxVoiceRounds: 1,
	}); err != nil {
		t.Fatal(err)
	}

	coord.runVoiceOffer(context.Background(), Job{ShiftID: "s1", Kind: JobKindVoiceOffer, RoundIndex: 1})

	_, _, _, status, _ := shifts.ShiftByID(context.Background(), "s1")
	if status != "UnfilledAfterCalls" {
		t.Fatalf("expected status UnfilledAfterCalls, got %s", status)
	}
}

func TestWaveDelayMinutes(t *testing.T) {
	cases := []struct {
		hours float64
		want  int
	}{
		{1, 10}, {2, 10}, {2.5, 15}, {3, 15}, {3.5, 20}, {4, 20}, {4.5, 25}, {5, 25}, {6, 30},
	}
	for _, c := range cases {
		if got := waveDelayMinutes(c.hours); got != c.want {
			t.Errorf("waveDelayMinutes(%v) = %d, want %d", c.hours, got, c.want)
		}
	}
}

func TestSendBackoffDelay(t *testing.T) {
	if d := sendBackoffDelay(1); d != 500*time.Millisecond {
		t.Errorf("attempt 1: got %v, want 500ms", d)
	}
	if d := sendBackoffDelay(2); d != time.Second {
		t.Errorf("attempt 2: got %v, want 1s", d)
	}
	if d := sendBackoffDelay(10); d != 8*time.Second {
		t.Errorf("attempt 10: got %v, want capped at 8s", d)
	}
}
