package session

import (
	"context"

	"github.com/shiftline/shiftline/internal/apperrors"
)

// phaseHandler is one entry of the dispatch table (§4.1a): a pure function
// from the current session and a normalized event to the next session and
// the Directives to execute. A handler never performs I/O itself — all
// upstream calls go through Capabilities, and their results are folded
// back into the return value.
//
// A handler returns (nil, directives, nil) to signal "no state change" —
// used for retry-safe directives on a transient upstream failure, per the
// Advance contract in §4.1.
type phaseHandler func(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error)

var handlers = map[Phase]phaseHandler{
	PhasePhoneAuth:              handlePhoneAuth,
	PhasePinAuth:                handlePinAuth,
	PhaseProviderSelection:      handleProviderSelection,
	PhaseShiftList:              handleShiftList,
	PhaseShiftOptions:           handleShiftOptions,
	PhaseCollectReason:          handleCollectReason,
	PhaseConfirmRelease:         handleConfirmRelease,
	PhaseRepresentativeTransfer: handleRepresentativeTransfer,
	PhaseWorkflowComplete:       handleWorkflowComplete,
}

// Advance is the FSM's entire public contract: deterministically folds one
// normalized event into the current session, producing the next session
// and the Directives the Telephony Adapter must execute (§4.1).
func Advance(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	if s.Phase == PhaseDone || s.Phase == PhaseError {
		return s, nil, nil
	}

	// At-most-once input processing: a repeated token is a duplicate
	// carrier retry, not a new input. Replay without re-running the
	// handler or touching state.
	if ev.Token != "" && ev.Token == s.LastInputToken {
		return s, s.LastDirectives, nil
	}

	if ev.Kind == EventSessionStopped {
		next := s.Clone()
		next.Phase = PhaseDone
		directives := []Directive{{Type: DirectiveHangup}}
		return finalize(caps, s, next, ev, directives), directives, nil
	}

	handler, ok := handlers[s.Phase]
	if !ok {
		return s, nil, apperrors.Fatal("session.Advance", nil)
	}

	next, directives, err := handler(ctx, caps, s, ev)
	if err != nil {
		if apperrors.IsRetriable(err) {
			return s, []Directive{{Type: DirectiveSpeak, Text: "Please wait while we look that up."}}, nil
		}
		failed := s.Clone()
		failed.Phase = PhaseError
		directives = []Directive{
			{Type: DirectiveSpeak, Text: "We're sorry, something went wrong on our end. Goodbye."},
			{Type: DirectiveHangup},
		}
		return finalize(caps, s, failed, ev, directives), directives, nil
	}

	if next == nil {
		// Handler signaled "no state change" (retry-safe directive).
		return s, directives, nil
	}

	return finalize(caps, s, next, ev, directives), directives, nil
}

// finalize stamps bookkeeping common to every transition: the input token
// consumed, the directives to replay on a duplicate, and a strictly
// increasing UpdatedAt (§4.1 result guarantees).
func finalize(caps Capabilities, prev, next *CallSession, ev NormalizedEvent, directives []Directive) *CallSession {
	if ev.Token != "" {
		next.LastInputToken = ev.Token
	}
	next.LastDirectives = directives

	now := caps.Clock.NowUTC()
	if !now.After(prev.UpdatedAt) {
		now = prev.UpdatedAt.Add(1)
	}
	next.UpdatedAt = now
	return next
}

// transitionTo moves next into phase, resetting that phase's attempt
// counter (§4.1: "all phase attempt counters reset on phase entry").
func transitionTo(next *CallSession, phase Phase) {
	next.Phase = phase
	next.Attempts[phase] = 0
}

func maxAttempts(caps Capabilities) int {
	if caps.Config.MaxAttempts > 0 {
		return caps.Config.MaxAttempts
	}
	return MaxAttemptsDefault
}

func pinLength(caps Capabilities) int {
	if caps.Config.PinLength > 0 {
		return caps.Config.PinLength
	}
	return 4
}

func pageSize(caps Capabilities) int {
	if caps.Config.ShiftListPageSize > 0 {
		return caps.Config.ShiftListPageSize
	}
	return 3
}

// postAuthTransition routes a newly-authenticated session into
// provider_selection or shift_list depending on how many providers the
// worker serves, and loads the first page of shifts when routing directly
// to shift_list.
func postAuthTransition(ctx context.Context, caps Capabilities, next *CallSession, worker *Worker, providers []Provider) ([]Directive, error) {
	next.Worker = worker
	if len(providers) > 1 {
		next.AvailableProviders = providers
		transitionTo(next, PhaseProviderSelection)
		return []Directive{{Type: DirectiveSpeakAndGather, Text: providerMenuPrompt(providers), GatherDigits: 1}}, nil
	}

	var provider *Provider
	if len(providers) == 1 {
		provider = &providers[0]
	}
	next.Provider = provider
	next.ShiftPage = 0
	return enterShiftList(ctx, caps, next)
}

func enterShiftList(ctx context.Context, caps Capabilities, next *CallSession) ([]Directive, error) {
	transitionTo(next, PhaseShiftList)
	if next.Provider == nil {
		return []Directive{{Type: DirectiveSpeak, Text: "No provider is configured for your account."}, {Type: DirectiveHangup}}, nil
	}
	shifts, hasMore, err := caps.Catalog.ShiftsForProvider(ctx, next.Provider.ID, next.ShiftPage, pageSize(caps))
	if err != nil {
		return nil, err
	}
	return []Directive{{Type: DirectiveSpeakAndGather, Text: shiftListPrompt(shifts, hasMore), GatherDigits: 1}}, nil
}

func handlePhoneAuth(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	worker, providers, err := caps.Auth.ByPhone(ctx, s.CallerPhone)
	if err != nil {
		return nil, nil, err
	}
	next := s.Clone()
	if worker == nil || !worker.Active {
		transitionTo(next, PhasePinAuth)
		next.PinBuffer = ""
		d := []Directive{{Type: DirectiveSpeakAndGather, Text: "Please enter your PIN followed by the pound sign.", GatherDigits: pinLength(caps)}}
		return next, d, nil
	}
	d, err := postAuthTransition(ctx, caps, next, worker, providers)
	if err != nil {
		return nil, nil, err
	}
	return next, d, nil
}

func handlePinAuth(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind != EventDTMF {
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "Please enter your PIN followed by the pound sign.", GatherDigits: pinLength(caps)}}, nil
	}

	if ev.Digit != "#" {
		next.PinBuffer += ev.Digit
	}
	if ev.Digit != "#" && len(next.PinBuffer) < pinLength(caps) {
		return next, []Directive{{Type: DirectiveSpeakAndGather, GatherDigits: pinLength(caps) - len(next.PinBuffer)}}, nil
	}

	pin := next.PinBuffer
	worker, providers, err := caps.Auth.ByPin(ctx, pin)
	if err != nil {
		return nil, nil, err
	}
	if worker == nil || !worker.Active {
		next.Attempts[PhasePinAuth]++
		next.PinBuffer = ""
		if next.Attempts[PhasePinAuth] >= maxAttempts(caps) {
			next.Phase = PhaseError
			return next, []Directive{
				{Type: DirectiveSpeak, Text: "We're sorry, we could not verify your PIN. Goodbye."},
				{Type: DirectiveHangup},
			}, nil
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "That PIN was not recognized. Please try again, followed by the pound sign.", GatherDigits: pinLength(caps)}}, nil
	}

	next.PinBuffer = ""
	d, err := postAuthTransition(ctx, caps, next, worker, providers)
	if err != nil {
		return nil, nil, err
	}
	return next, d, nil
}

func handleProviderSelection(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind != EventDTMF {
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: providerMenuPrompt(next.AvailableProviders), GatherDigits: 1}}, nil
	}

	idx, ok := oneIndexed(ev.Digit, len(next.AvailableProviders))
	if !ok {
		next.Attempts[PhaseProviderSelection]++
		if next.Attempts[PhaseProviderSelection] >= maxAttempts(caps) {
			next.Phase = PhaseError
			return next, []Directive{
				{Type: DirectiveSpeak, Text: "We're sorry, we could not process your selection. Goodbye."},
				{Type: DirectiveHangup},
			}, nil
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "Sorry, that wasn't a valid option. " + providerMenuPrompt(next.AvailableProviders), GatherDigits: 1}}, nil
	}

	provider := next.AvailableProviders[idx]
	next.Provider = &provider
	next.ShiftPage = 0
	d, err := enterShiftList(ctx, caps, next)
	if err != nil {
		return nil, nil, err
	}
	return next, d, nil
}

func handleShiftList(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind != EventDTMF {
		shifts, hasMore, err := caps.Catalog.ShiftsForProvider(ctx, next.Provider.ID, next.ShiftPage, pageSize(caps))
		if err != nil {
			return nil, nil, err
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: shiftListPrompt(shifts, hasMore), GatherDigits: 1}}, nil
	}

	if ev.Digit == "1" {
		transitionTo(next, PhaseRepresentativeTransfer)
		return next, []Directive{{Type: DirectiveSpeak, Text: "Connecting you to a representative."}}, nil
	}

	shifts, hasMore, err := caps.Catalog.ShiftsForProvider(ctx, next.Provider.ID, next.ShiftPage, pageSize(caps))
	if err != nil {
		return nil, nil, err
	}

	switch ev.Digit {
	case "9":
		if hasMore {
			next.ShiftPage++
		}
		shifts, hasMore, err = caps.Catalog.ShiftsForProvider(ctx, next.Provider.ID, next.ShiftPage, pageSize(caps))
		if err != nil {
			return nil, nil, err
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: shiftListPrompt(shifts, hasMore), GatherDigits: 1}}, nil
	case "8":
		if next.ShiftPage > 0 {
			next.ShiftPage--
		}
		shifts, hasMore, err = caps.Catalog.ShiftsForProvider(ctx, next.Provider.ID, next.ShiftPage, pageSize(caps))
		if err != nil {
			return nil, nil, err
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: shiftListPrompt(shifts, hasMore), GatherDigits: 1}}, nil
	}

	idx, ok := digitIndex(ev.Digit, len(shifts))
	if !ok || ev.Digit == "0" {
		next.Attempts[PhaseShiftList]++
		if next.Attempts[PhaseShiftList] >= maxAttempts(caps) {
			next.Phase = PhaseError
			return next, []Directive{
				{Type: DirectiveSpeak, Text: "We're sorry, we could not process your selection. Goodbye."},
				{Type: DirectiveHangup},
			}, nil
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "Sorry, that wasn't a valid option. " + shiftListPrompt(shifts, hasMore), GatherDigits: 1}}, nil
	}

	shift := shifts[idx]
	next.SelectedShift = &shift
	transitionTo(next, PhaseShiftOptions)
	return next, []Directive{{Type: DirectiveSpeakAndGather, Text: shiftOptionsPrompt(shift), GatherDigits: 1}}, nil
}

func handleShiftOptions(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind != EventDTMF {
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: shiftOptionsPrompt(*next.SelectedShift), GatherDigits: 1}}, nil
	}

	switch ev.Digit {
	case "1":
		transitionTo(next, PhaseCollectReason)
		return next, []Directive{{Type: DirectiveRecord}, {Type: DirectiveSpeak, Text: "Please say a brief reason for releasing this shift."}}, nil
	case "2":
		transitionTo(next, PhaseRepresentativeTransfer)
		return next, []Directive{{Type: DirectiveSpeak, Text: "Connecting you to a representative."}}, nil
	default:
		next.Attempts[PhaseShiftOptions]++
		if next.Attempts[PhaseShiftOptions] >= maxAttempts(caps) {
			next.Phase = PhaseError
			return next, []Directive{
				{Type: DirectiveSpeak, Text: "We're sorry, we could not process your selection. Goodbye."},
				{Type: DirectiveHangup},
			}, nil
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "Sorry, that wasn't a valid option. " + shiftOptionsPrompt(*next.SelectedShift), GatherDigits: 1}}, nil
	}
}

func handleCollectReason(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind != EventSpeechEnd {
		return next, nil, nil
	}
	if ev.Transcript == "" {
		next.Attempts[PhaseCollectReason]++
		if next.Attempts[PhaseCollectReason] >= maxAttempts(caps) {
			next.Phase = PhaseError
			return next, []Directive{
				{Type: DirectiveSpeak, Text: "We're sorry, we didn't catch a reason. Goodbye."},
				{Type: DirectiveHangup},
			}, nil
		}
		return next, []Directive{{Type: DirectiveSpeak, Text: "Sorry, I didn't catch that. Please say a brief reason for releasing this shift."}}, nil
	}
	next.ReleaseReason = ev.Transcript
	transitionTo(next, PhaseConfirmRelease)
	return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "To confirm releasing this shift, press 1. To go back, press 2.", GatherDigits: 1}}, nil
}

func handleConfirmRelease(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind != EventDTMF {
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "To confirm releasing this shift, press 1. To go back, press 2.", GatherDigits: 1}}, nil
	}

	switch ev.Digit {
	case "1":
		var workerID string
		if next.Worker != nil {
			workerID = next.Worker.ID
		}
		if err := caps.Cascade.Release(ctx, next.SelectedShift.ID, workerID, next.ReleaseReason, next.RootID); err != nil {
			// §4.4 failure semantics: queue unavailable -> representative
			// transfer fallback, not an internal retry.
			transitionTo(next, PhaseRepresentativeTransfer)
			return next, []Directive{{Type: DirectiveSpeak, Text: "We couldn't release that shift automatically. Connecting you to a representative."}}, nil
		}
		next.SelectedShift.Status = ShiftOpen
		transitionTo(next, PhaseWorkflowComplete)
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "Your shift has been released and staff will be notified. Press 1 to return to the main menu, or hang up.", GatherDigits: 1}}, nil
	case "2":
		transitionTo(next, PhaseShiftOptions)
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: shiftOptionsPrompt(*next.SelectedShift), GatherDigits: 1}}, nil
	default:
		next.Attempts[PhaseConfirmRelease]++
		if next.Attempts[PhaseConfirmRelease] >= maxAttempts(caps) {
			next.Phase = PhaseError
			return next, []Directive{
				{Type: DirectiveSpeak, Text: "We're sorry, we could not process your selection. Goodbye."},
				{Type: DirectiveHangup},
			}, nil
		}
		return next, []Directive{{Type: DirectiveSpeakAndGather, Text: "Sorry, press 1 to confirm or 2 to go back.", GatherDigits: 1}}, nil
	}
}

func handleRepresentativeTransfer(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	target := caps.Config.DefaultTransferNumber
	if next.Provider != nil && next.Provider.TransferNumber != "" {
		target = next.Provider.TransferNumber
	}
	next.PendingTransfer = &PendingTransfer{TargetPhone: target, CallerPhone: next.CallerPhone}
	transitionTo(next, PhaseDone)
	return next, []Directive{{Type: DirectiveTransfer, Target: target}}, nil
}

func handleWorkflowComplete(ctx context.Context, caps Capabilities, s *CallSession, ev NormalizedEvent) (*CallSession, []Directive, error) {
	next := s.Clone()
	if ev.Kind == EventDTMF && ev.Digit == "1" {
		next.ShiftPage = 0
		d, err := enterShiftList(ctx, caps, next)
		if err != nil {
			return nil, nil, err
		}
		return next, d, nil
	}
	transitionTo(next, PhaseDone)
	return next, []Directive{{Type: DirectiveHangup}}, nil
}

// digitIndex maps a 2..n selection digit onto a zero-based index into a
// list of length n-1 options (§4.1: "digits 2..n select shift index (n-1)").
func digitIndex(digit string, n int) (int, bool) {
	if len(digit) != 1 || digit[0] < '2' || digit[0] > '9' {
		return 0, false
	}
	idx := int(digit[0] - '2')
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// oneIndexed maps selection digits "1".."9" onto a zero-based index,
// used where there is no reserved "1" = speak-to-representative digit.
func oneIndexed(digit string, n int) (int, bool) {
	if len(digit) != 1 || digit[0] < '1' || digit[0] > '9' {
		return 0, false
	}
	idx := int(digit[0] - '1')
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}
