package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shiftline/shiftline/internal/apperrors"
)

// CarrierClient talks to the carrier's call-control REST API: the
// counterpart to the webhook/media-stream surface Handlers/Handler serve,
// grounded on the same bare-*http.Client-with-bearer-auth shape
// internal/catalog.Client uses against the record-system API. One
// CarrierClient is shared process-wide; ForSession binds it to a single
// call for the lifetime of that call's ControlIssuer.
type CarrierClient struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// NewCarrierClient builds a client for the carrier's control API.
func NewCarrierClient(baseURL, authToken string, timeout time.Duration) *CarrierClient {
	return &CarrierClient{
		baseURL:   baseURL,
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *CarrierClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding carrier request for %s: %w", path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building carrier request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.TransientUpstream("carrier."+method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.TransientUpstream("carrier."+method, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return apperrors.TransientUpstream("carrier."+method, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return apperrors.PermanentUpstream("carrier."+method, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}
	if out == nil {
		return nil
	}
	if len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// CallerPhone implements CallerPhoneFetcher: the one-shot fetch against
// the carrier control API named in §4.3 when session-start omits the
// caller phone.
func (c *CarrierClient) CallerPhone(sessionID string) (string, error) {
	var dto struct {
		CallerPhone string `json:"callerPhone"`
	}
	if err := c.do(context.Background(), http.MethodGet, "/sessions/"+sessionID, nil, &dto); err != nil {
		return "", err
	}
	return dto.CallerPhone, nil
}

// FetchAsset implements recording.CarrierAssetFetcher.
func (c *CarrierClient) FetchAsset(ctx context.Context, carrierAssetSID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/recordings/"+carrierAssetSID+"/media", nil)
	if err != nil {
		return nil, "", fmt.Errorf("building carrier asset request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", apperrors.TransientUpstream("carrier.FetchAsset", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.TransientUpstream("carrier.FetchAsset", err)
	}
	if resp.StatusCode >= 500 {
		return nil, "", apperrors.TransientUpstream("carrier.FetchAsset", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, "", apperrors.PermanentUpstream("carrier.FetchAsset", fmt.Errorf("status %d", resp.StatusCode))
	}
	return data, "wav", nil
}

// DeleteAsset implements recording.CarrierAssetFetcher.
func (c *CarrierClient) DeleteAsset(ctx context.Context, carrierAssetSID string) error {
	return c.do(ctx, http.MethodDelete, "/recordings/"+carrierAssetSID, nil, nil)
}

// SessionControl is a CarrierClient bound to one call, implementing
// ControlIssuer for the Executor driving that call's Directives.
type SessionControl struct {
	client    *CarrierClient
	sessionID string
}

// ForSession binds the client to a single call's control-plane actions.
func (c *CarrierClient) ForSession(sessionID string) *SessionControl {
	return &SessionControl{client: c, sessionID: sessionID}
}

// Transfer implements ControlIssuer.
func (s *SessionControl) Transfer(ctx context.Context, target string, timeout time.Duration) error {
	payload := map[string]any{"target": target, "timeoutSeconds": int(timeout.Seconds())}
	return s.client.do(ctx, http.MethodPost, "/sessions/"+s.sessionID+"/transfer", payload, nil)
}

// Hangup implements ControlIssuer.
func (s *SessionControl) Hangup(ctx context.Context) error {
	return s.client.do(ctx, http.MethodPost, "/sessions/"+s.sessionID+"/hangup", nil, nil)
}

// StartRecording implements ControlIssuer.
func (s *SessionControl) StartRecording(ctx context.Context, stereo bool) error {
	payload := map[string]any{"stereo": stereo}
	return s.client.do(ctx, http.MethodPost, "/sessions/"+s.sessionID+"/recording/start", payload, nil)
}
