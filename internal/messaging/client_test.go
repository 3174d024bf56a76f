package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSend_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected path /v1/messages, got %s", r.URL.Path)
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.To != "+15551234567" {
			t.Errorf("expected to %q, got %q", "+15551234567", req.To)
		}
		json.NewEncoder(w).Encode(envelope{
			Data: json.RawMessage(`{"accepted":true,"message_id":"m1"}`),
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "svc-1", "+15550001111")
	accepted, err := client.Send(context.Background(), "+15551234567", "JOB AVAILABLE: Alice B., Aug 1 10:00AM. Reply or view: https://x/y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accepted {
		t.Error("expected accepted=true")
	}
}

func TestSend_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(envelope{Error: "invalid service id"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad-svc", "+15550001111")
	_, err := client.Send(context.Background(), "+15551234567", "body")
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestConfigured(t *testing.T) {
	tests := []struct {
		name                        string
		baseURL, serviceID, from    string
		want                        bool
	}{
		{"all set", "https://gw.example.com", "svc", "+15550001111", true},
		{"missing from", "https://gw.example.com", "svc", "", false},
		{"all empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.baseURL, tt.serviceID, tt.from)
			if c.Configured() != tt.want {
				t.Errorf("Configured() = %v, want %v", c.Configured(), tt.want)
			}
		})
	}
}
