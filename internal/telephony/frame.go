// Package telephony is the Telephony Adapter (§4.3): it terminates the
// carrier's HTTP webhook and bidirectional media-stream protocol,
// normalizes inbound events for the Call FSM, and executes the
// Directives Advance hands back as carrier-facing media frames and
// control documents.
package telephony

import (
	"encoding/base64"
	"time"
)

// Codec/frame constants (§4.3 "Media rules"): μ-law @ 8kHz mono, 20ms
// frames — the same packet cadence the retrieved pack's RTP player uses
// (samplesPerPacket=160 @ 8kHz, packetDuration=20ms), carried here over a
// JSON/WebSocket transport instead of raw RTP.
const (
	samplesPerFrame = 160
	frameDuration   = 20 * time.Millisecond
)

// FrameEvent distinguishes the carrier media-stream frame's event field.
type FrameEvent string

const (
	FrameEventStart  FrameEvent = "start"
	FrameEventMedia  FrameEvent = "media"
	FrameEventDTMF   FrameEvent = "dtmf"
	FrameEventStop   FrameEvent = "stop"
)

// InboundFrame is the carrier's bidirectional media-stream frame schema
// (§6): { event, streamSid, media?: {payload, track}, dtmf?: {digit},
// start?: {..., customParameters}, stop? }.
type InboundFrame struct {
	Event    FrameEvent      `json:"event"`
	StreamSID string         `json:"streamSid"`
	Media    *mediaPayload   `json:"media,omitempty"`
	DTMF     *dtmfPayload    `json:"dtmf,omitempty"`
	Start    *startPayload   `json:"start,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"` // base64 μ-law, 20ms
	Track   string `json:"track"`
}

type dtmfPayload struct {
	Digit string `json:"digit"`
}

type startPayload struct {
	CallSID          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

// OutboundFrame is a synthesized-audio frame sent back to the carrier.
type OutboundFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// decodeMediaPayload base64-decodes one inbound μ-law frame.
func decodeMediaPayload(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

// chunkFrames splits raw μ-law audio into samplesPerFrame-sized frames for
// 20ms-paced outbound delivery (§4.3 "Outbound synthesized audio is
// rechunked to 20ms μ-law frames and paced on a 20ms cadence").
func chunkFrames(pcmuAudio []byte) [][]byte {
	var frames [][]byte
	for i := 0; i < len(pcmuAudio); i += samplesPerFrame {
		end := i + samplesPerFrame
		if end > len(pcmuAudio) {
			end = len(pcmuAudio)
		}
		frames = append(frames, pcmuAudio[i:end])
	}
	return frames
}
