package session

import (
	"context"

	"github.com/shiftline/shiftline/internal/clock"
)

// Authenticator resolves a caller to a Worker, grounded on the teacher's
// repository-per-entity pattern but backed by the Catalog Read-Through
// rather than local SQL (§4.5).
//
// ByPhone and ByPin return (nil, nil, nil) when no active worker matches —
// that is the ordinary "fall through to the next auth method" path, not an
// error. A non-nil error means the lookup itself failed (transient or
// permanent upstream failure) and must be classified via apperrors.
type Authenticator interface {
	ByPhone(ctx context.Context, e164 string) (*Worker, []Provider, error)
	ByPin(ctx context.Context, pin string) (*Worker, []Provider, error)
}

// Catalog is the read-through view of shift and provider data the FSM
// consults while walking a session (§4.6).
type Catalog interface {
	ProviderByID(ctx context.Context, id string) (*Provider, error)
	// ShiftsForProvider returns one page of a provider's future Scheduled
	// shifts ordered ascending by ScheduledAt (ties broken by ID), plus
	// whether a further page exists.
	ShiftsForProvider(ctx context.Context, providerID string, page, pageSize int) (shifts []ShiftOccurrence, hasMore bool, err error)
}

// CascadeReleaser hands a released shift off to the Notification Cascade
// Coordinator (§4.4). A non-nil error means the queue primitive itself is
// unavailable; the FSM does not retry internally and instead offers a
// representative-transfer fallback. releaseAttemptId scopes the (shiftId,
// releaseAttemptId) idempotency property from §8: replaying the same call's
// release (e.g. a duplicated webhook or a re-processed input token) must not
// enqueue a second cascade for the same shift.
type CascadeReleaser interface {
	Release(ctx context.Context, shiftID, releasingWorkerID, reason, releaseAttemptId string) error
}

// Config bundles the FSM's tunable numeric parameters (§4.1 "Numeric semantics").
type Config struct {
	PinLength              int
	ShiftListPageSize      int
	MaxAttempts            int
	DefaultTransferNumber  string
}

// DefaultFSMConfig mirrors the defaults named in §4.1/§9.
func DefaultFSMConfig() Config {
	return Config{
		PinLength:         4,
		ShiftListPageSize: 3,
		MaxAttempts:       MaxAttemptsDefault,
	}
}

// Capabilities is the injected interface bundle each phase handler is
// given, generalizing the teacher's resolver/sip constructor arguments
// (`flow.NewEngine(flows, cdrs, resolver, logger)`) into a single bundle
// passed through the dispatch table (§4.1a).
type Capabilities struct {
	Auth    Authenticator
	Catalog Catalog
	Cascade CascadeReleaser
	Clock   clock.Clock
	Config  Config
}
