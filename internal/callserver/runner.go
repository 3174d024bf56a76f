// Package callserver wires the Call FSM (internal/session) to the
// Telephony Adapter (internal/telephony): it is the concrete
// telephony.SessionRunner and telephony.SessionStarter that load/save
// CallSessions around each Advance call and execute the resulting
// Directives, generalizing the teacher's `flow.Engine` (the concrete
// glue binding its own phase-dispatch table to the SIP transport) to
// this carrier's webhook/media-stream transport.
package callserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shiftline/shiftline/internal/clock"
	"github.com/shiftline/shiftline/internal/eventstream"
	"github.com/shiftline/shiftline/internal/session"
	"github.com/shiftline/shiftline/internal/telephony"
)

// EventRecorder is the subset of *eventstream.Stream the Runner needs,
// narrowed so Advance can be exercised in tests without a live Redis
// instance.
type EventRecorder interface {
	Append(ctx context.Context, evt eventstream.Event) error
}

// Runner implements telephony.SessionStarter, telephony.SessionRunner, and
// telephony.RecordingContext against a single session.Store.
type Runner struct {
	store  session.Store
	caps   session.Capabilities
	clock  clock.Clock
	events EventRecorder
	log    *slog.Logger
}

// New builds a Runner bound to a Call-State Store and the FSM's injected
// capability bundle. events may be nil, in which case Advance/StartSession
// skip Event Stream recording (used by tests that don't care about §4.8).
func New(store session.Store, caps session.Capabilities, clk clock.Clock, events EventRecorder, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, caps: caps, clock: clk, events: events, log: logger}
}

func (r *Runner) record(ctx context.Context, kind eventstream.Kind, s *session.CallSession) {
	if r.events == nil || s == nil || s.Provider == nil {
		return
	}
	if err := r.events.Append(ctx, eventstream.Event{
		Kind:       kind,
		ProviderID: s.Provider.ID,
		SessionID:  s.ID,
		At:         r.clock.Now(),
	}); err != nil {
		r.log.Error("callserver: recording event failed", "session_id", s.ID, "kind", kind, "error", err)
	}
}

// recordTransition appends an Event Stream entry (§4.8) the first time a
// phase change makes it observable: provider resolution (call
// authenticated), the representative-transfer fallback, and terminal
// completion or error.
func (r *Runner) recordTransition(ctx context.Context, prev, next *session.CallSession) {
	if prev.Phase == next.Phase {
		return
	}
	switch next.Phase {
	case session.PhasePinAuth, session.PhaseProviderSelection, session.PhaseShiftList:
		if prev.Provider == nil && next.Provider != nil {
			r.record(ctx, eventstream.KindCallAuthenticated, next)
		}
	case session.PhaseRepresentativeTransfer:
		r.record(ctx, eventstream.KindCallTransferred, next)
	case session.PhaseDone, session.PhaseError:
		r.record(ctx, eventstream.KindCallEnded, next)
	}
}

// StartSession creates and persists a fresh CallSession for a newly
// arrived carrier session id (§4.3's session-start webhook).
func (r *Runner) StartSession(sessionID, direction, callerPhone string) error {
	s := session.NewCallSession(sessionID, session.Direction(direction), callerPhone, r.clock.Now())
	if err := r.store.Save(context.Background(), s); err != nil {
		return fmt.Errorf("callserver: saving new session %s: %w", sessionID, err)
	}
	return nil
}

// Advance folds one NormalizedEvent into the session named by sessionID
// and executes the resulting Directives, serialized per session by the
// Store's WithLock (§4.2/§5).
func (r *Runner) Advance(ctx context.Context, sessionID string, ev session.NormalizedEvent, exec *telephony.Executor) error {
	return r.store.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := r.store.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("callserver: loading session %s: %w", sessionID, err)
		}

		next, directives, err := session.Advance(ctx, r.caps, s, ev)
		if err != nil {
			r.log.Error("callserver: advance failed", "session_id", sessionID, "error", err)
			return err
		}
		if next != nil {
			if err := r.store.Save(ctx, next); err != nil {
				return fmt.Errorf("callserver: saving session %s: %w", sessionID, err)
			}
			r.recordTransition(ctx, s, next)
		}

		for _, d := range directives {
			if err := exec.Execute(ctx, d); err != nil {
				r.log.Error("callserver: executing directive failed", "session_id", sessionID, "directive", d.Type, "error", err)
			}
		}
		return nil
	})
}

// RecordingContextFor resolves the provider/worker/root-call identifiers
// the Recording Pipeline needs once a call ends (§4.7), read from the
// session state accumulated during the call.
func (r *Runner) RecordingContextFor(sessionID string) (providerID, workerID, rootCallID string, err error) {
	s, loadErr := r.store.Load(context.Background(), sessionID)
	if loadErr != nil {
		return "", "", "", fmt.Errorf("callserver: loading session %s: %w", sessionID, loadErr)
	}
	if s.Provider != nil {
		providerID = s.Provider.ID
	}
	if s.Worker != nil {
		workerID = s.Worker.ID
	}
	return providerID, workerID, s.RootID, nil
}
