// Package catalog implements the Catalog Read-Through (§4.6): an
// HTTP-client-backed repository per entity, fronted by a short-TTL
// in-memory cache, in front of the external record-system API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shiftline/shiftline/internal/apperrors"
	"github.com/shiftline/shiftline/internal/session"
)

// Client talks to the record-system HTTP API. Grounded on the retrieved
// pack's external-inference-API clients (e.g. the DeepInfra transcription
// client): a bare *http.Client with a fixed timeout and bearer auth, no
// generated SDK.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a catalog API client. timeout bounds every request.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type workerDTO struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Phone       string   `json:"phone"`
	ProviderIDs []string `json:"providerIds"`
	Active      bool     `json:"active"`
}

type providerDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Greeting       string `json:"greeting"`
	Timezone       string `json:"timezone"`
	TransferNumber string `json:"transferNumber"`
}

type shiftDTO struct {
	ID               string `json:"id"`
	TemplateID       string `json:"templateId"`
	ProviderID       string `json:"providerId"`
	AssignedWorkerID string `json:"assignedWorkerId"`
	PatientDisplay   string `json:"patientDisplay"`
	ScheduledAt      string `json:"scheduledAt"`
	ScheduledAtLocal string `json:"scheduledAtLocal"`
	Status           string `json:"status"`
}

type shiftPageDTO struct {
	Shifts  []shiftDTO `json:"shifts"`
	HasMore bool       `json:"hasMore"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.TransientUpstream("catalog.get", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.TransientUpstream("catalog.get", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(path)
	case resp.StatusCode >= 500:
		return apperrors.TransientUpstream("catalog.get", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	case resp.StatusCode >= 400:
		return apperrors.PermanentUpstream("catalog.get", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.PermanentUpstream("catalog.get", fmt.Errorf("decoding %s response: %w", path, err))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.TransientUpstream("catalog.post", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.TransientUpstream("catalog.post", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return apperrors.TransientUpstream("catalog.post", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return apperrors.PermanentUpstream("catalog.post", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func workerFromDTO(d workerDTO) session.Worker {
	return session.Worker{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Phone:       d.Phone,
		ProviderIDs: d.ProviderIDs,
		Active:      d.Active,
	}
}

func providerFromDTO(d providerDTO) session.Provider {
	return session.Provider{
		ID:             d.ID,
		Name:           d.Name,
		Greeting:       d.Greeting,
		Timezone:       d.Timezone,
		TransferNumber: d.TransferNumber,
	}
}

func shiftFromDTO(d shiftDTO) (session.ShiftOccurrence, error) {
	at, err := time.Parse(time.RFC3339, d.ScheduledAt)
	if err != nil {
		return session.ShiftOccurrence{}, fmt.Errorf("parsing scheduledAt %q: %w", d.ScheduledAt, err)
	}
	return session.ShiftOccurrence{
		ID:               d.ID,
		TemplateID:       d.TemplateID,
		ProviderID:       d.ProviderID,
		AssignedWorkerID: d.AssignedWorkerID,
		PatientDisplay:   d.PatientDisplay,
		ScheduledAt:      at,
		ScheduledAtLocal: d.ScheduledAtLocal,
		Status:           session.ShiftStatus(d.Status),
	}, nil
}
