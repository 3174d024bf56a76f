package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shiftline/shiftline/internal/cascade"
)

// CascadeAdapter implements cascade.ShiftWriter and cascade.WorkerPool on
// top of the same record-system Client the Catalog Read-Through uses,
// grounded on the teacher's repository-per-entity pattern: a thin
// translation layer over Client.get/Client.post, kept separate from
// Repository because the Notification Cascade's ShiftOccurrence status
// writes (§4.4) are a distinct write-through concern from the read-through
// Catalog a call session consults (§4.6) — the cache in Repository must
// never serve a shift a cascade write just changed.
type CascadeAdapter struct {
	client *Client
}

// NewCascadeAdapter wires a Client into the cascade's catalog ports.
func NewCascadeAdapter(client *Client) *CascadeAdapter {
	return &CascadeAdapter{client: client}
}

type cascadeShiftDTO struct {
	ID               string `json:"id"`
	ProviderID       string `json:"providerId"`
	PatientDisplay   string `json:"patientDisplay"`
	ScheduledAt      string `json:"scheduledAt"`
	ScheduledAtLocal string `json:"scheduledAtLocal"`
	Suburb           string `json:"suburb"`
	Status           string `json:"status"`
}

type cascadeWorkerDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	Phone     string `json:"phone"`
}

// ShiftByID implements cascade.ShiftWriter.
func (a *CascadeAdapter) ShiftByID(ctx context.Context, shiftID string) (cascade.ShiftSummary, string, time.Time, string, error) {
	var dto cascadeShiftDTO
	if err := a.client.get(ctx, "/shifts/"+shiftID, &dto); err != nil {
		return cascade.ShiftSummary{}, "", time.Time{}, "", err
	}
	scheduledAt, err := time.Parse(time.RFC3339, dto.ScheduledAt)
	if err != nil {
		return cascade.ShiftSummary{}, "", time.Time{}, "", fmt.Errorf("catalog: parsing shift scheduledAt: %w", err)
	}
	summary := cascade.ShiftSummary{
		ID:               dto.ID,
		PatientDisplay:   dto.PatientDisplay,
		ScheduledAtLocal: dto.ScheduledAtLocal,
		Suburb:           dto.Suburb,
	}
	return summary, dto.ProviderID, scheduledAt, dto.Status, nil
}

// MarkOpen implements cascade.ShiftWriter.
func (a *CascadeAdapter) MarkOpen(ctx context.Context, shiftID string) error {
	return a.setStatus(ctx, shiftID, "Open", nil)
}

// MarkFilled implements cascade.ShiftWriter.
func (a *CascadeAdapter) MarkFilled(ctx context.Context, shiftID, workerID string) error {
	return a.setStatus(ctx, shiftID, "Filled", &workerID)
}

// MarkUnfilledAfterText implements cascade.ShiftWriter.
func (a *CascadeAdapter) MarkUnfilledAfterText(ctx context.Context, shiftID string) error {
	return a.setStatus(ctx, shiftID, "UnfilledAfterText", nil)
}

// MarkUnfilledAfterCalls implements cascade.ShiftWriter.
func (a *CascadeAdapter) MarkUnfilledAfterCalls(ctx context.Context, shiftID string) error {
	return a.setStatus(ctx, shiftID, "UnfilledAfterCalls", nil)
}

func (a *CascadeAdapter) setStatus(ctx context.Context, shiftID, status string, assignedWorkerID *string) error {
	payload := map[string]any{"status": status}
	if assignedWorkerID != nil {
		payload["assignedWorkerId"] = *assignedWorkerID
	}
	return a.client.post(ctx, "/shifts/"+shiftID+"/status", payload, nil)
}

// EligibleWorkers implements cascade.WorkerPool: the provider's active
// roster, minus anyone in exclude (the releasing worker and anyone who
// already declined or was already offered this shift).
func (a *CascadeAdapter) EligibleWorkers(ctx context.Context, providerID string, exclude []string) ([]cascade.Worker, error) {
	var dtos []cascadeWorkerDTO
	path := fmt.Sprintf("/providers/%s/workers?active=true", providerID)
	if err := a.client.get(ctx, path, &dtos); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	workers := make([]cascade.Worker, 0, len(dtos))
	for _, d := range dtos {
		if excluded[d.ID] {
			continue
		}
		workers = append(workers, cascade.Worker{ID: d.ID, FirstName: d.FirstName, Phone: d.Phone})
	}
	return workers, nil
}
