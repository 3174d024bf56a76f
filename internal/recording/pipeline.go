// Package recording implements the Recording Pipeline (§4.7): after a
// session ends, wait for the carrier to finalize its recording asset,
// attempt to durably archive it to object storage, and fall back to the
// carrier-hosted URL if that archive attempt fails — while guaranteeing
// the call log always ends up with exactly one playable URL.
package recording

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftline/shiftline/internal/clock"
)

// gracePeriod is the default wait for the carrier to finalize its asset
// after session-end (§4.7 step 1).
const gracePeriod = 3 * time.Second

// Asset is the outcome the Call Log record stores: exactly one of
// ObjectStoreURL/CarrierURL is non-empty (§8's invariant: never
// both-missing, never both-and-deleted).
type Asset struct {
	RootCallID     string
	ObjectStoreURL string
	CarrierURL     string
	DeletedFromCarrier bool
}

// CarrierAssetFetcher downloads the carrier-hosted recording asset once
// it has finished finalizing.
type CarrierAssetFetcher interface {
	FetchAsset(ctx context.Context, carrierAssetSID string) (data []byte, ext string, err error)
	DeleteAsset(ctx context.Context, carrierAssetSID string) error
}

// CallLogWriter records the finalized Asset against a call's log entry.
type CallLogWriter interface {
	RecordRecording(ctx context.Context, rootCallID string, asset Asset) error
}

// Pipeline runs the finalize sequence for one completed session's
// recording, grounded on the retrieved pack's recording-retention ticker
// (`StartCleanupTicker`) for the background-worker shape, generalized
// from periodic bulk deletion into a one-shot per-call finalize-and-
// archive-or-fallback sequence triggered by the carrier's recording-status
// webhook.
type Pipeline struct {
	store  *ObjectStore
	fetch  CarrierAssetFetcher
	logs   CallLogWriter
	clock  clock.Clock
	logger *slog.Logger
	grace  time.Duration
}

// New builds a Pipeline.
func New(store *ObjectStore, fetch CarrierAssetFetcher, logs CallLogWriter, clk clock.Clock, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, fetch: fetch, logs: logs, clock: clk, logger: logger, grace: gracePeriod}
}

// Finalize implements §4.7 steps 1-4. providerID/workerID key the
// deterministic object-store path; rootCallID keys the buffer so a
// transfer mid-call does not split one call's recording into two assets.
func (p *Pipeline) Finalize(ctx context.Context, providerID, workerID, rootCallID, carrierAssetSID, carrierURL string) error {
	select {
	case <-p.clock.After(p.grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	data, ext, err := p.fetch.FetchAsset(ctx, carrierAssetSID)
	if err != nil {
		p.logger.Warn("recording pipeline: carrier asset fetch failed, keeping carrier URL", "root_call_id", rootCallID, "error", err)
		return p.recordCarrierFallback(ctx, rootCallID, carrierURL)
	}

	key, err := p.store.Put(ctx, providerID, workerID, rootCallID, ext, data)
	if err != nil {
		p.logger.Warn("recording pipeline: object-store upload failed, keeping carrier URL", "root_call_id", rootCallID, "error", err)
		return p.recordCarrierFallback(ctx, rootCallID, carrierURL)
	}

	presigned, err := p.store.PresignedURL(ctx, key)
	if err != nil {
		p.logger.Warn("recording pipeline: presign failed after upload, keeping carrier URL", "root_call_id", rootCallID, "error", err)
		return p.recordCarrierFallback(ctx, rootCallID, carrierURL)
	}

	if err := p.logs.RecordRecording(ctx, rootCallID, Asset{RootCallID: rootCallID, ObjectStoreURL: presigned}); err != nil {
		return fmt.Errorf("recording pipeline: recording object-store asset: %w", err)
	}

	if err := p.fetch.DeleteAsset(ctx, carrierAssetSID); err != nil {
		// The durable URL is already recorded; a failed carrier-side
		// delete leaves an orphaned asset on the carrier but never
		// violates the "exactly one playable URL" invariant.
		p.logger.Warn("recording pipeline: carrier asset delete failed after successful archive", "root_call_id", rootCallID, "error", err)
	}
	return nil
}

func (p *Pipeline) recordCarrierFallback(ctx context.Context, rootCallID, carrierURL string) error {
	if err := p.logs.RecordRecording(ctx, rootCallID, Asset{RootCallID: rootCallID, CarrierURL: carrierURL}); err != nil {
		return fmt.Errorf("recording pipeline: recording carrier-hosted fallback: %w", err)
	}
	return nil
}
