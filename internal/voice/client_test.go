package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPlaceOffer_AnsweredAccept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/offers" {
			t.Errorf("expected path /v1/offers, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		var req OfferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.To != "+15551234567" {
			t.Errorf("expected to %q, got %q", "+15551234567", req.To)
		}
		json.NewEncoder(w).Encode(envelope{
			Data: json.RawMessage(`{"outcome":"answered-accept","digit":"1"}`),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second)
	result, err := client.PlaceOffer(context.Background(), OfferRequest{
		To: "+15551234567", AudioScriptID: "shift-offer:s1:w1", GatherDigits: 1, TimeoutSec: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "answered-accept" || result.Digit != "1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestPlaceOffer_NoAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope{Data: json.RawMessage(`{"outcome":"no-answer"}`)})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second)
	result, err := client.PlaceOffer(context.Background(), OfferRequest{To: "+15551234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != "no-answer" {
		t.Errorf("expected no-answer, got %q", result.Outcome)
	}
}

func TestPlaceOffer_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(envelope{Error: "upstream carrier unavailable"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second)
	_, err := client.PlaceOffer(context.Background(), OfferRequest{To: "+15551234567"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestStats_ReportsClosedInitially(t *testing.T) {
	client := NewClient("https://example.invalid", "test-key", time.Second)
	if client.Stats().State != "closed" {
		t.Errorf("expected a fresh breaker to be closed, got %v", client.Stats().State)
	}
}
