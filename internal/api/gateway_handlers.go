package api

import (
	"net/http"

	"github.com/shiftline/shiftline/internal/circuitbreaker"
)

// BreakerStats is the subset of messaging.Client/voice.Client the Operator
// API needs to report outbound-gateway health (§6a), grounded on the
// teacher's handleSystemStatus — the upstream-health half of that endpoint
// generalized to this domain's two outbound gateways instead of SIP trunks.
type BreakerStats interface {
	Stats() circuitbreaker.Stats
}

type gatewayStatusResponse struct {
	Messaging circuitbreaker.Stats `json:"messaging"`
	Voice     circuitbreaker.Stats `json:"voice"`
}

// handleGatewayStatus returns the message-gateway and voice-offer-gateway
// circuit breakers' current state and counters.
func (s *Server) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	resp := gatewayStatusResponse{}
	if s.messaging != nil {
		resp.Messaging = s.messaging.Stats()
	}
	if s.voice != nil {
		resp.Voice = s.voice.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
