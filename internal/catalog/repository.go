package catalog

import (
	"context"
	"fmt"

	"github.com/shiftline/shiftline/internal/apperrors"
	"github.com/shiftline/shiftline/internal/clock"
	"github.com/shiftline/shiftline/internal/session"
)

// Repository implements session.Catalog and auth.WorkerDirectory on top of
// a Client, fronted by a short-TTL cache (§4.6).
type Repository struct {
	client *Client
	cache  *cache
}

// NewRepository wires a Client into the cached Catalog Read-Through.
func NewRepository(client *Client, clk clock.Clock) *Repository {
	return &Repository{client: client, cache: newCache(defaultCacheTTL, clk)}
}

func workerKey(id string) string    { return "worker:" + id }
func workerPhoneKey(p string) string { return "worker-phone:" + p }
func providerKey(id string) string  { return "provider:" + id }

// WorkerByPhone implements auth.WorkerDirectory.
func (r *Repository) WorkerByPhone(ctx context.Context, phone string) (*session.Worker, error) {
	key := workerPhoneKey(phone)
	if v, _, ok := r.cache.get(key); ok {
		w := v.(session.Worker)
		return &w, nil
	}

	var dto workerDTO
	if err := r.client.get(ctx, "/workers/by-phone/"+phone, &dto); err != nil {
		if apperrors.GetKind(err) == apperrors.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	w := workerFromDTO(dto)
	r.cache.set(key, w)
	r.cache.set(workerKey(w.ID), w)
	return &w, nil
}

// ListActiveWorkers implements auth.WorkerDirectory. The roster of active
// workers is small (a single on-call group) and changes slowly enough that
// it is always fetched live: caching a list under a single key would need
// its own invalidation-on-write story that nothing in this domain asks for.
func (r *Repository) ListActiveWorkers(ctx context.Context) ([]session.Worker, error) {
	var dtos []workerDTO
	if err := r.client.get(ctx, "/workers?active=true", &dtos); err != nil {
		return nil, err
	}
	workers := make([]session.Worker, 0, len(dtos))
	for _, d := range dtos {
		if !d.Active {
			continue
		}
		workers = append(workers, workerFromDTO(d))
	}
	return workers, nil
}

// ProvidersFor implements auth.WorkerDirectory, resolving each provider id
// through the cached ProviderByID path.
func (r *Repository) ProvidersFor(ctx context.Context, providerIDs []string) ([]session.Provider, error) {
	providers := make([]session.Provider, 0, len(providerIDs))
	for _, id := range providerIDs {
		p, err := r.ProviderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			providers = append(providers, *p)
		}
	}
	return providers, nil
}

// ProviderByID implements session.Catalog.
func (r *Repository) ProviderByID(ctx context.Context, id string) (*session.Provider, error) {
	key := providerKey(id)
	if v, _, ok := r.cache.get(key); ok {
		p := v.(session.Provider)
		return &p, nil
	}

	var dto providerDTO
	if err := r.client.get(ctx, "/providers/"+id, &dto); err != nil {
		return nil, err
	}
	p := providerFromDTO(dto)
	r.cache.set(key, p)
	return &p, nil
}

// ShiftsForProvider implements session.Catalog. Shift-list pages are never
// cached: they back a transition (shift selection) that writes back to the
// catalog on release, and §4.6 forbids using a stale read for any
// transition that writes back.
func (r *Repository) ShiftsForProvider(ctx context.Context, providerID string, page, pageSize int) ([]session.ShiftOccurrence, bool, error) {
	path := fmt.Sprintf("/providers/%s/shifts?status=Scheduled&page=%d&pageSize=%d", providerID, page, pageSize)
	var dto shiftPageDTO
	if err := r.client.get(ctx, path, &dto); err != nil {
		return nil, false, err
	}
	shifts := make([]session.ShiftOccurrence, 0, len(dto.Shifts))
	for _, s := range dto.Shifts {
		sh, err := shiftFromDTO(s)
		if err != nil {
			return nil, false, apperrors.PermanentUpstream("catalog.ShiftsForProvider", err)
		}
		shifts = append(shifts, sh)
	}
	return shifts, dto.HasMore, nil
}

// InvalidateWorker drops a worker's cached entries after a write-through,
// e.g. a PIN change or roster edit made via the operator API.
func (r *Repository) InvalidateWorker(id, phone string) {
	r.cache.invalidate(workerKey(id))
	if phone != "" {
		r.cache.invalidate(workerPhoneKey(phone))
	}
}
