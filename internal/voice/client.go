// Package voice implements the outbound voice-offer gateway client the
// Cascade Coordinator's Voice-Offer Processor uses to place a PSTN call,
// play a pre-synthesized offer, and gather one DTMF digit (§4.4).
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shiftline/shiftline/internal/circuitbreaker"
)

// OfferRequest places one outbound voice-offer call.
type OfferRequest struct {
	To            string `json:"to"`
	AudioScriptID string `json:"audio_script_id"`
	GatherDigits  int    `json:"gather_digits"`
	TimeoutSec    int    `json:"timeout_sec"`
}

// OfferResult reports how the call concluded. Outcome is one of
// "answered-accept", "answered-decline", "answered-no-input", "no-answer",
// "busy", "error" — the Voice-Offer Processor only acts on
// answered-accept, treating everything else as "continue to next worker".
type OfferResult struct {
	Outcome string `json:"outcome"`
	Digit   string `json:"digit,omitempty"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client is an HTTP client for the voice-offer placement API, grounded on
// the retrieved pack's circuit-breaker-wrapped external voice API client
// (same request/doRequest split, same breaker-around-HTTP-call shape),
// adapted from a multi-endpoint AI-calling SDK down to the one endpoint
// this domain needs: place an offer and wait for its outcome.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewClient builds a voice-offer gateway client. timeout should exceed
// TimeoutSec on every OfferRequest placed through it, since the gateway
// blocks until the call concludes or its own per-call timeout fires.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("voice-offer-gateway", circuitbreaker.DefaultConfig(), slog.Default()),
	}
}

// PlaceOffer places one outbound call and blocks for its outcome.
func (c *Client) PlaceOffer(ctx context.Context, req OfferRequest) (OfferResult, error) {
	var result OfferResult
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		r, err := c.doPlaceOffer(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (c *Client) doPlaceOffer(ctx context.Context, req OfferRequest) (OfferResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return OfferResult{}, fmt.Errorf("voice: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/offers", bytes.NewReader(body))
	if err != nil {
		return OfferResult{}, fmt.Errorf("voice: creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return OfferResult{}, fmt.Errorf("voice: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return OfferResult{}, fmt.Errorf("voice: reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return OfferResult{}, fmt.Errorf("voice: gateway error (status %d): %s", resp.StatusCode, env.Error)
		}
		return OfferResult{}, fmt.Errorf("voice: gateway returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return OfferResult{}, fmt.Errorf("voice: decoding response: %w", err)
	}
	var result OfferResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return OfferResult{}, fmt.Errorf("voice: decoding offer result: %w", err)
	}
	slog.Debug("voice offer placed", "to", req.To, "outcome", result.Outcome)
	return result, nil
}

// Stats exposes the breaker's counters for the operator API (§6a).
func (c *Client) Stats() circuitbreaker.Stats {
	return c.breaker.Stats()
}
