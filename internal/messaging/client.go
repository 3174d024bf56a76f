// Package messaging implements the text-message gateway client the
// Cascade Coordinator's Text-Wave Processor uses to notify eligible
// workers of an open shift.
package messaging

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

// SendRequest is the payload sent to the message gateway's POST /v1/messages endpoint.
type SendRequest struct {
	ServiceID string `json:"service_id"`
	To        string `json:"to"`
	From      string `json:"from"`
	Body      string `json:"body"`
}

// SendResponse is the response from POST /v1/messages.
type SendResponse struct {
	Accepted  bool   `json:"accepted"`
	MessageID string `json:"message_id"`
}

// envelope is the standard gateway response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client is an HTTP client for the text-message gateway, adapted from the
// teacher's push-notification gateway client (same envelope/Configured
// shape) for this domain's SMS worker-notification channel (§4.4, §6).
type Client struct {
	httpClient *http.Client
	baseURL    string
	serviceID  string
	from       string
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new message gateway HTTP client. baseURL is the
// gateway endpoint; serviceID authenticates this deployment; from is the
// sending number/shortcode.
func NewClient(baseURL, serviceID, from string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		serviceID:  serviceID,
		from:       from,
		breaker:    circuitbreaker.New("message-gateway", circuitbreaker.DefaultConfig(), slog.Default()),
	}
}

// Send delivers one text message to a worker's phone number and reports
// whether the gateway accepted it for delivery.
func (c *Client) Send(ctx context.Context, to, body string) (bool, error) {
	var accepted bool
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		a, sendErr := c.doSend(ctx, to, body)
		if sendErr != nil {
			return sendErr
		}
		accepted = a
		return nil
	})
	return accepted, err
}

// Stats exposes the breaker's counters for the operator API (§6a).
func (c *Client) Stats() circuitbreaker.Stats {
	return c.breaker.Stats()
}

func (c *Client) doSend(ctx context.Context, to, body string) (bool, error) {
	req := SendRequest{ServiceID: c.serviceID, To: to, From: c.from, Body: body}

	payload, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("messaging: marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("messaging: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Service-ID", c.serviceID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("messaging: sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false, fmt.Errorf("messaging: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Error != "" {
			return false, fmt.Errorf("messaging: gateway error (status %d): %s", resp.StatusCode, env.Error)
		}
		return false, fmt.Errorf("messaging: gateway returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return false, fmt.Errorf("messaging: decoding response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(env.Data, &sendResp); err != nil {
		return false, fmt.Errorf("messaging: decoding send response data: %w", err)
	}

	slog.Debug("text message sent", "accepted", sendResp.Accepted, "to", to)

	return sendResp.Accepted, nil
}

// Configured returns true if the client has a valid base URL, service id and from number.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.serviceID != "" && c.from != ""
}
