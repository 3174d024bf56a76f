package telephony

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/shiftline/shiftline/internal/session"
)

// Synthesizer renders text to μ-law @ 8kHz mono PCM audio. Injected rather
// than built here — §1's Non-goals exclude picking a specific TTS vendor,
// matching the teacher's own capability-interface style of keeping an
// external vendor behind a narrow port (`session.Authenticator`,
// `session.Catalog`) rather than importing its SDK directly.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// FrameSender delivers one outbound frame over the carrier's
// media-stream connection. Narrowed to this one method so Executor can be
// driven by a fake in tests instead of a live *websocket.Conn.
type FrameSender interface {
	SendFrame(frame OutboundFrame) error
}

// ControlIssuer issues carrier control-plane actions outside the
// media-stream frame channel: transfer, hangup and recording start.
type ControlIssuer interface {
	Transfer(ctx context.Context, target string, timeout time.Duration) error
	Hangup(ctx context.Context) error
	StartRecording(ctx context.Context, stereo bool) error
}

// Executor translates Directives into carrier actions, generalizing the
// retrieved pack's SIPActions capability-interface pattern (a narrow set
// of call-control verbs injected into the flow engine) from a SIP
// B2BUA onto this carrier's webhook/media-stream surface.
//
// Only one active synthesized-audio stream may run per session at a time
// (§4.3): starting a new Speak cancels the current one via cancelSpeak.
type Executor struct {
	sender  FrameSender
	control ControlIssuer
	synth   Synthesizer

	streamSID string

	mu          sync.Mutex
	speakGen    int
	cancelSpeak context.CancelFunc
}

// NewExecutor builds a Directive executor bound to one session's
// media-stream connection and control-plane issuer.
func NewExecutor(streamSID string, sender FrameSender, control ControlIssuer, synth Synthesizer) *Executor {
	return &Executor{streamSID: streamSID, sender: sender, control: control, synth: synth}
}

// Execute carries out one Directive, returning once playback/transfer/
// hangup has been issued (Speak/SpeakAndGather return once the audio has
// finished streaming, not once the caller has responded — gathering the
// caller's response is the media-stream handler's job, fed back as
// NormalizedEvents).
func (e *Executor) Execute(ctx context.Context, d session.Directive) error {
	switch d.Type {
	case session.DirectiveSpeak, session.DirectiveSpeakAndGather:
		return e.speak(ctx, d.Text)
	case session.DirectiveRecord:
		return e.control.StartRecording(ctx, true)
	case session.DirectiveTransfer:
		timeout := d.GatherTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		return e.control.Transfer(ctx, d.Target, timeout)
	case session.DirectiveHangup:
		return e.control.Hangup(ctx)
	default:
		return fmt.Errorf("telephony: unknown directive type %q", d.Type)
	}
}

func (e *Executor) speak(ctx context.Context, text string) error {
	speakCtx, cancel := e.beginSpeak(ctx)
	defer cancel()

	audio, err := e.synth.Synthesize(speakCtx, text)
	if err != nil {
		return fmt.Errorf("telephony: synthesizing speech: %w", err)
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for _, chunk := range chunkFrames(audio) {
		select {
		case <-speakCtx.Done():
			return speakCtx.Err()
		case <-ticker.C:
			frame := OutboundFrame{Event: "media", StreamSID: e.streamSID}
			frame.Media.Payload = base64.StdEncoding.EncodeToString(chunk)
			if err := e.sender.SendFrame(frame); err != nil {
				return fmt.Errorf("telephony: sending frame: %w", err)
			}
		}
	}
	return nil
}

// beginSpeak cancels any still-running speak and starts tracking the new
// one, implementing the "starting a new speak cancels the current stream"
// rule. A generation counter guards against a just-finished speak's
// cleanup clobbering a newer speak that started after it.
func (e *Executor) beginSpeak(parent context.Context) (context.Context, context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelSpeak != nil {
		e.cancelSpeak()
	}
	e.speakGen++
	gen := e.speakGen
	ctx, cancel := context.WithCancel(parent)
	e.cancelSpeak = cancel
	return ctx, func() {
		cancel()
		e.mu.Lock()
		if e.speakGen == gen {
			e.cancelSpeak = nil
		}
		e.mu.Unlock()
	}
}
