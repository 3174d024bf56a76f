package auth

import (
	"context"
	"fmt"

	"github.com/shiftline/shiftline/internal/apperrors"
	"github.com/shiftline/shiftline/internal/session"
)

// WorkerDirectory is the subset of the Catalog Read-Through this package
// needs to resolve a Worker and its Providers; implemented by
// internal/catalog.
type WorkerDirectory interface {
	WorkerByPhone(ctx context.Context, phone string) (*session.Worker, error)
	ListActiveWorkers(ctx context.Context) ([]session.Worker, error)
	ProvidersFor(ctx context.Context, providerIDs []string) ([]session.Provider, error)
}

// CredentialStore holds the WorkerCredential entity (§3a): the PIN hash
// kept separate from the cached Worker record so a catalog cache entry
// never carries a secret.
type CredentialStore interface {
	PINHash(ctx context.Context, workerID string) (string, error)
}

// Authenticator implements session.Authenticator against a WorkerDirectory
// and a CredentialStore.
type Authenticator struct {
	Directory   WorkerDirectory
	Credentials CredentialStore
}

// NewAuthenticator wires a WorkerDirectory and CredentialStore into the
// session.Authenticator capability the Call FSM consumes.
func NewAuthenticator(dir WorkerDirectory, creds CredentialStore) *Authenticator {
	return &Authenticator{Directory: dir, Credentials: creds}
}

// ByPhone resolves a caller's phone number to an active Worker and the
// providers it serves. A nil, nil, nil return means "not found", which is
// not an error: the FSM treats it as a fall-through to PIN authentication.
func (a *Authenticator) ByPhone(ctx context.Context, phone string) (*session.Worker, []session.Provider, error) {
	w, err := a.Directory.WorkerByPhone(ctx, phone)
	if err != nil {
		if apperrors.GetKind(err) == apperrors.KindNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("resolving worker by phone: %w", err)
	}
	if w == nil || !w.Active {
		return nil, nil, nil
	}
	providers, err := a.Directory.ProvidersFor(ctx, w.ProviderIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving providers for worker %s: %w", w.ID, err)
	}
	return w, providers, nil
}

// ByPin resolves a DTMF-entered PIN to the Worker whose WorkerCredential
// hash matches. PINs are Argon2id-hashed with a random salt per §4.5, so
// there is no direct keyed lookup from PIN to worker id: this scans the
// active worker set and verifies each stored hash in turn. Call volumes
// this system is sized for (a single provider group's on-call roster) keep
// that scan small; a directory large enough to make the scan a bottleneck
// would need a different WorkerCredential index, not a different FSM
// contract.
func (a *Authenticator) ByPin(ctx context.Context, pin string) (*session.Worker, []session.Provider, error) {
	workers, err := a.Directory.ListActiveWorkers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing active workers: %w", err)
	}
	for i := range workers {
		w := &workers[i]
		hash, err := a.Credentials.PINHash(ctx, w.ID)
		if err != nil {
			if apperrors.GetKind(err) == apperrors.KindNotFound {
				continue
			}
			return nil, nil, fmt.Errorf("loading credential for worker %s: %w", w.ID, err)
		}
		match, err := CheckPIN(pin, hash)
		if err != nil {
			continue // malformed/stale hash; treat as no match rather than failing the whole lookup
		}
		if match {
			providers, err := a.Directory.ProvidersFor(ctx, w.ProviderIDs)
			if err != nil {
				return nil, nil, fmt.Errorf("resolving providers for worker %s: %w", w.ID, err)
			}
			return w, providers, nil
		}
	}
	return nil, nil, nil
}
