package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shiftline/shiftline/internal/recording"
)

// SessionStartRequest is the carrier's session-start webhook payload
// (§6): session id, direction, endpoints, and optionally the caller phone
// as a side-channel parameter.
type SessionStartRequest struct {
	SessionID   string `json:"sessionId"`
	Direction   string `json:"direction"`
	From        string `json:"from"`
	To          string `json:"to"`
	CallerPhone string `json:"callerPhone,omitempty"`
}

// SessionStartResponse is the control document instructing the carrier to
// connect the media stream and, per §6's parenthetical, record=true as a
// bare boolean for this carrier's connect-stream verb.
type SessionStartResponse struct {
	ConnectStreamURL        string `json:"connectStreamUrl"`
	Record                  bool   `json:"record"`
	RecordingStatusCallback string `json:"recordingStatusCallback"`
}

// RecordingStatusRequest is the carrier's recording-status webhook
// payload: asset SID, duration, and the carrier-hosted URL.
type RecordingStatusRequest struct {
	SessionID       string `json:"sessionId"`
	CarrierAssetSID string `json:"recordingSid"`
	DurationSeconds int    `json:"durationSeconds"`
	CarrierURL      string `json:"recordingUrl"`
}

// CallerPhoneFetcher performs the one-shot carrier control-API fetch
// named in §4.3 ("if missing, the adapter performs a one-shot fetch
// against the carrier control API") when session-start omits the caller
// phone.
type CallerPhoneFetcher interface {
	CallerPhone(sessionID string) (string, error)
}

// SessionStarter is invoked once per session-start webhook.
type SessionStarter interface {
	StartSession(sessionID, direction, callerPhone string) error
}

// RecordingContext resolves the provider/worker/root-call identifiers the
// Recording Pipeline needs to key a finalized asset, given the session id
// the carrier's recording-status webhook reports against.
type RecordingContext interface {
	RecordingContextFor(sessionID string) (providerID, workerID, rootCallID string, err error)
}

// Handlers wires the carrier webhook HTTP surface.
type Handlers struct {
	Starter       SessionStarter
	PhoneFetcher  CallerPhoneFetcher
	Pipeline      *recording.Pipeline
	Sessions      RecordingContext
	PublicBaseURL string
	Logger        *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// HandleSessionStart implements the session-start webhook (§6).
func (h *Handlers) HandleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req SessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed session-start payload", http.StatusBadRequest)
		return
	}

	callerPhone := req.CallerPhone
	if callerPhone == "" && h.PhoneFetcher != nil {
		fetched, err := h.PhoneFetcher.CallerPhone(req.SessionID)
		if err == nil {
			callerPhone = fetched
		}
	}

	if err := h.Starter.StartSession(req.SessionID, req.Direction, callerPhone); err != nil {
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	resp := SessionStartResponse{
		ConnectStreamURL:        fmt.Sprintf("wss://%s/media-stream/%s", h.PublicBaseURL, req.SessionID),
		Record:                  true,
		RecordingStatusCallback: fmt.Sprintf("https://%s/webhooks/recording-status", h.PublicBaseURL),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleRecordingStatus implements the recording-status webhook (§6),
// triggering Recording Pipeline finalization (§4.7) in the background so
// the webhook response is not held open for the grace period + upload.
func (h *Handlers) HandleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	var req RecordingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed recording-status payload", http.StatusBadRequest)
		return
	}

	providerID, workerID, rootCallID, err := h.Sessions.RecordingContextFor(req.SessionID)
	if err != nil {
		h.logger().Error("recording status: resolving session context failed", "session_id", req.SessionID, "error", err)
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	go func() {
		ctx := context.Background()
		if err := h.Pipeline.Finalize(ctx, providerID, workerID, rootCallID, req.CarrierAssetSID, req.CarrierURL); err != nil {
			h.logger().Error("recording pipeline finalize failed", "root_call_id", rootCallID, "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}
