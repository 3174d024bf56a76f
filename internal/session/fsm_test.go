package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shiftline/shiftline/internal/apperrors"
	"github.com/shiftline/shiftline/internal/clock"
)

type fakeAuth struct {
	byPhone map[string]struct {
		worker    *Worker
		providers []Provider
	}
	byPin map[string]struct {
		worker    *Worker
		providers []Provider
	}
	phoneErr error
	pinErr   error
}

func (f *fakeAuth) ByPhone(ctx context.Context, e164 string) (*Worker, []Provider, error) {
	if f.phoneErr != nil {
		return nil, nil, f.phoneErr
	}
	v, ok := f.byPhone[e164]
	if !ok {
		return nil, nil, nil
	}
	return v.worker, v.providers, nil
}

func (f *fakeAuth) ByPin(ctx context.Context, pin string) (*Worker, []Provider, error) {
	if f.pinErr != nil {
		return nil, nil, f.pinErr
	}
	v, ok := f.byPin[pin]
	if !ok {
		return nil, nil, nil
	}
	return v.worker, v.providers, nil
}

type fakeCatalog struct {
	shifts   map[string][]ShiftOccurrence
	shiftErr error
}

func (f *fakeCatalog) ProviderByID(ctx context.Context, id string) (*Provider, error) {
	return &Provider{ID: id}, nil
}

func (f *fakeCatalog) ShiftsForProvider(ctx context.Context, providerID string, page, pageSize int) ([]ShiftOccurrence, bool, error) {
	if f.shiftErr != nil {
		return nil, false, f.shiftErr
	}
	all := f.shifts[providerID]
	start := page * pageSize
	if start >= len(all) {
		return nil, false, nil
	}
	end := start + pageSize
	hasMore := end < len(all)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], hasMore, nil
}

type fakeCascade struct {
	releaseErr error
	released   []string
}

func (f *fakeCascade) Release(ctx context.Context, shiftID, workerID, reason, releaseAttemptId string) error {
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.released = append(f.released, shiftID)
	return nil
}

func testCaps(auth Authenticator, cat Catalog, cascade CascadeReleaser, mock *clock.Mock) Capabilities {
	return Capabilities{
		Auth:    auth,
		Catalog: cat,
		Cascade: cascade,
		Clock:   mock,
		Config:  DefaultFSMConfig(),
	}
}

func singleShift(id, display string, when time.Time) ShiftOccurrence {
	return ShiftOccurrence{ID: id, ProviderID: "prov-1", PatientDisplay: display, ScheduledAt: when, ScheduledAtLocal: when.Format("Jan 2 3:04PM"), Status: ShiftScheduled}
}

func TestAdvance_PhoneAuthKnownSingleProvider_GoesToShiftList(t *testing.T) {
	mock := clock.NewMock(time.Now())
	auth := &fakeAuth{byPhone: map[string]struct {
		worker    *Worker
		providers []Provider
	}{
		"+15551234567": {
			worker:    &Worker{ID: "w1", Active: true, ProviderIDs: []string{"prov-1"}},
			providers: []Provider{{ID: "prov-1", Name: "Acme Clinic"}},
		},
	}}
	cat := &fakeCatalog{shifts: map[string][]ShiftOccurrence{
		"prov-1": {singleShift("sh1", "Jane D.", mock.Now().Add(24 * time.Hour))},
	}}
	caps := testCaps(auth, cat, &fakeCascade{}, mock)

	s := NewCallSession("sess1", DirectionInbound, "+15551234567", mock.Now())
	next, directives, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStarted, Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Phase != PhaseShiftList {
		t.Errorf("phase = %v, want %v", next.Phase, PhaseShiftList)
	}
	if next.Worker == nil || next.Worker.ID != "w1" {
		t.Errorf("worker not attached: %+v", next.Worker)
	}
	if len(directives) != 1 || directives[0].Type != DirectiveSpeakAndGather {
		t.Errorf("unexpected directives: %+v", directives)
	}
	if !next.UpdatedAt.After(s.UpdatedAt) {
		t.Error("UpdatedAt did not advance")
	}
}

func TestAdvance_PhoneAuthUnknown_GoesToPinAuth(t *testing.T) {
	mock := clock.NewMock(time.Now())
	auth := &fakeAuth{byPhone: map[string]struct {
		worker    *Worker
		providers []Provider
	}{}}
	caps := testCaps(auth, &fakeCatalog{}, &fakeCascade{}, mock)

	s := NewCallSession("sess2", DirectionInbound, "+10000000000", mock.Now())
	next, _, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStarted, Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Phase != PhasePinAuth {
		t.Errorf("phase = %v, want %v", next.Phase, PhasePinAuth)
	}
}

func TestAdvance_MultiProvider_GoesToProviderSelectionThenShiftList(t *testing.T) {
	mock := clock.NewMock(time.Now())
	providers := []Provider{{ID: "prov-1", Name: "Acme"}, {ID: "prov-2", Name: "Beta"}}
	auth := &fakeAuth{byPhone: map[string]struct {
		worker    *Worker
		providers []Provider
	}{
		"+15551234567": {worker: &Worker{ID: "w1", Active: true}, providers: providers},
	}}
	cat := &fakeCatalog{shifts: map[string][]ShiftOccurrence{
		"prov-2": {singleShift("sh9", "Amy R.", mock.Now().Add(48 * time.Hour))},
	}}
	caps := testCaps(auth, cat, &fakeCascade{}, mock)

	s := NewCallSession("sess3", DirectionInbound, "+15551234567", mock.Now())
	next, _, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStarted, Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Phase != PhaseProviderSelection {
		t.Fatalf("phase = %v, want %v", next.Phase, PhaseProviderSelection)
	}

	next2, _, err := Advance(context.Background(), caps, next, NormalizedEvent{Kind: EventDTMF, Digit: "2", Token: "t2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next2.Phase != PhaseShiftList {
		t.Fatalf("phase = %v, want %v", next2.Phase, PhaseShiftList)
	}
	if next2.Provider == nil || next2.Provider.ID != "prov-2" {
		t.Errorf("selected wrong provider: %+v", next2.Provider)
	}
}

func TestAdvance_PinAuthExhaustion_GoesToError(t *testing.T) {
	mock := clock.NewMock(time.Now())
	auth := &fakeAuth{byPhone: map[string]struct {
		worker    *Worker
		providers []Provider
	}{}}
	caps := testCaps(auth, &fakeCatalog{}, &fakeCascade{}, mock)

	s := NewCallSession("sess4", DirectionInbound, "+10000000000", mock.Now())
	s.Phase = PhasePinAuth

	tok := 0
	nextToken := func() string { tok++; return "tok" + string(rune('0'+tok)) }

	cur := s
	for i := 0; i < MaxAttemptsDefault; i++ {
		n, _, err := Advance(context.Background(), caps, cur, NormalizedEvent{Kind: EventDTMF, Digit: "9", Token: nextToken()})
		if err != nil {
			t.Fatalf("unexpected error on attempt %d: %v", i, err)
		}
		n, _, err = Advance(context.Background(), caps, n, NormalizedEvent{Kind: EventDTMF, Digit: "9", Token: nextToken()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n, _, err = Advance(context.Background(), caps, n, NormalizedEvent{Kind: EventDTMF, Digit: "9", Token: nextToken()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n, _, err = Advance(context.Background(), caps, n, NormalizedEvent{Kind: EventDTMF, Digit: "#", Token: nextToken()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cur = n
	}

	if cur.Phase != PhaseError {
		t.Errorf("phase after exhausting attempts = %v, want %v", cur.Phase, PhaseError)
	}
}

func TestAdvance_DuplicateToken_ReplaysWithoutStateChange(t *testing.T) {
	mock := clock.NewMock(time.Now())
	auth := &fakeAuth{byPhone: map[string]struct {
		worker    *Worker
		providers []Provider
	}{}}
	caps := testCaps(auth, &fakeCatalog{}, &fakeCascade{}, mock)

	s := NewCallSession("sess5", DirectionInbound, "+10000000000", mock.Now())
	next, directives1, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStarted, Token: "dup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replay, directives2, err := Advance(context.Background(), caps, next, NormalizedEvent{Kind: EventSessionStarted, Token: "dup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replay != next {
		t.Error("expected the exact same session pointer to be returned on a duplicate token")
	}
	if len(directives1) != len(directives2) {
		t.Errorf("replayed directives differ in length: %d vs %d", len(directives1), len(directives2))
	}
	if !replay.UpdatedAt.Equal(next.UpdatedAt) {
		t.Error("UpdatedAt changed on a duplicate-token replay")
	}
}

func TestAdvance_TransientCatalogError_NoStateChange(t *testing.T) {
	mock := clock.NewMock(time.Now())
	auth := &fakeAuth{byPhone: map[string]struct {
		worker    *Worker
		providers []Provider
	}{
		"+15551234567": {worker: &Worker{ID: "w1", Active: true}, providers: []Provider{{ID: "prov-1"}}},
	}}
	cat := &fakeCatalog{shiftErr: apperrors.TransientUpstream("catalog.ShiftsForProvider", errors.New("timeout"))}
	caps := testCaps(auth, cat, &fakeCascade{}, mock)

	s := NewCallSession("sess6", DirectionInbound, "+15551234567", mock.Now())
	next, directives, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStarted, Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != s {
		t.Error("expected no state change on a transient upstream failure")
	}
	if len(directives) != 1 || directives[0].Type != DirectiveSpeak {
		t.Errorf("expected a retry-safe speak directive, got %+v", directives)
	}
}

func TestAdvance_SessionStopped_TerminatesImmediately(t *testing.T) {
	mock := clock.NewMock(time.Now())
	caps := testCaps(&fakeAuth{}, &fakeCatalog{}, &fakeCascade{}, mock)

	s := NewCallSession("sess7", DirectionInbound, "+10000000000", mock.Now())
	s.Phase = PhaseShiftOptions
	next, directives, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStopped, Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Phase != PhaseDone {
		t.Errorf("phase = %v, want %v", next.Phase, PhaseDone)
	}
	if len(directives) != 1 || directives[0].Type != DirectiveHangup {
		t.Errorf("expected hangup directive, got %+v", directives)
	}
}

func TestAdvance_TerminalPhaseIsNoOp(t *testing.T) {
	mock := clock.NewMock(time.Now())
	caps := testCaps(&fakeAuth{}, &fakeCatalog{}, &fakeCascade{}, mock)

	s := NewCallSession("sess8", DirectionInbound, "+10000000000", mock.Now())
	s.Phase = PhaseDone
	next, directives, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventDTMF, Digit: "5", Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != s || directives != nil {
		t.Error("expected a true no-op on a terminal phase")
	}
}

func TestAdvance_ConfirmReleaseAccept_ReleasesAndGoesToWorkflowComplete(t *testing.T) {
	mock := clock.NewMock(time.Now())
	caps := testCaps(&fakeAuth{}, &fakeCatalog{}, &fakeCascade{}, mock)

	s := NewCallSession("sess9", DirectionInbound, "+10000000000", mock.Now())
	s.Phase = PhaseConfirmRelease
	s.SelectedShift = &ShiftOccurrence{ID: "sh1", Status: ShiftScheduled}
	s.Worker = &Worker{ID: "w1"}

	next, directives, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventDTMF, Digit: "1", Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Phase != PhaseWorkflowComplete {
		t.Errorf("phase = %v, want %v", next.Phase, PhaseWorkflowComplete)
	}
	if next.SelectedShift.Status != ShiftOpen {
		t.Errorf("shift status = %v, want %v", next.SelectedShift.Status, ShiftOpen)
	}
	if len(directives) == 0 {
		t.Error("expected directives describing workflow completion")
	}
}

func TestAdvance_ConfirmReleaseCascadeUnavailable_FallsBackToRepresentativeTransfer(t *testing.T) {
	mock := clock.NewMock(time.Now())
	cascade := &fakeCascade{releaseErr: apperrors.ErrQueueUnavailable}
	caps := testCaps(&fakeAuth{}, &fakeCatalog{}, cascade, mock)

	s := NewCallSession("sess10", DirectionInbound, "+10000000000", mock.Now())
	s.Phase = PhaseConfirmRelease
	s.SelectedShift = &ShiftOccurrence{ID: "sh1", Status: ShiftScheduled}

	next, _, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventDTMF, Digit: "1", Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Phase != PhaseRepresentativeTransfer {
		t.Errorf("phase = %v, want %v", next.Phase, PhaseRepresentativeTransfer)
	}
}

func TestAdvance_RepresentativeTransfer_EmitsTransferDirective(t *testing.T) {
	mock := clock.NewMock(time.Now())
	caps := testCaps(&fakeAuth{}, &fakeCatalog{}, &fakeCascade{}, mock)
	caps.Config.DefaultTransferNumber = "+18005551212"

	s := NewCallSession("sess11", DirectionInbound, "+10000000000", mock.Now())
	s.Phase = PhaseRepresentativeTransfer

	next, directives, err := Advance(context.Background(), caps, s, NormalizedEvent{Kind: EventSessionStarted, Token: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(directives) != 1 || directives[0].Type != DirectiveTransfer || directives[0].Target != "+18005551212" {
		t.Errorf("unexpected directives: %+v", directives)
	}
	if next.Phase != PhaseDone {
		t.Errorf("phase = %v, want %v", next.Phase, PhaseDone)
	}
}

func TestCloneDoesNotAliasMutableFields(t *testing.T) {
	s := NewCallSession("sess12", DirectionInbound, "+10000000000", time.Now())
	s.Worker = &Worker{ID: "w1", ProviderIDs: []string{"p1"}}
	clone := s.Clone()
	clone.Worker.ProviderIDs[0] = "changed"
	if s.Worker.ProviderIDs[0] == "changed" {
		t.Error("Clone aliased the Worker.ProviderIDs slice")
	}
	clone.Attempts[PhasePinAuth] = 5
	if s.Attempts[PhasePinAuth] != 0 {
		t.Error("Clone aliased the Attempts map")
	}
}
