package telephony

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shiftline/shiftline/internal/session"
)

// SessionRunner advances one session's FSM for a NormalizedEvent and
// executes the resulting Directives, bridging the media-stream connection
// to the Call FSM.
type SessionRunner interface {
	Advance(ctx context.Context, sessionID string, ev session.NormalizedEvent, exec *Executor) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// channelBundleSize bounds the per-session inbound event channel, following
// the retrieved pack's CallDTMFManager buffer sizing (generous enough that
// a human pressing keys never blocks the sender under normal conditions),
// applied to lifecycle events as well as DTMF.
const channelBundleSize = 64

// sessionChannels is the per-session channel bundle (§4.3a): one buffered
// channel carrying inbound DTMF and lifecycle events, serviced by exactly
// one goroutine draining them in arrival order. Inbound media frames are
// decoded in the read loop and are not queued here. Generalizes the
// retrieved pack's per-call `ChannelManager`/`ChannelData` (non-blocking
// append with drop-oldest on a full channel) from one audio-only channel
// to the normalized events the Call FSM consumes.
type sessionChannels struct {
	events chan session.NormalizedEvent
	done   chan struct{}
}

func newSessionChannels() *sessionChannels {
	return &sessionChannels{
		events: make(chan session.NormalizedEvent, channelBundleSize),
		done:   make(chan struct{}),
	}
}

// push delivers an event without blocking the WebSocket read loop; a full
// channel (a stalled FSM) drops the oldest queued event rather than
// stalling media-frame ingestion (§5: "media-frame ingestion must not
// block on catalog or queue operations").
func (c *sessionChannels) push(ev session.NormalizedEvent) {
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- ev:
		default:
		}
	}
}

// Handler serves the carrier's bidirectional media-stream WebSocket
// connection for one session at a time.
type Handler struct {
	runner SessionRunner
	synth  Synthesizer
	logger *slog.Logger
}

// NewHandler builds a media-stream Handler.
func NewHandler(runner SessionRunner, synth Synthesizer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, synth: synth, logger: logger}
}

// wsSender adapts a *websocket.Conn (guarded by a mutex, since gorilla's
// Conn forbids concurrent writers) to FrameSender.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) SendFrame(frame OutboundFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

// ServeHTTP upgrades the connection and runs the per-session read loop:
// one goroutine reads frames off the wire and normalizes them, a second
// drains the resulting event channel and feeds the FSM — so a slow
// Advance (catalog/queue round-trip) never blocks inbound frame reads.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request, sessionID string, control ControlIssuer) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("media stream: upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	sender := &wsSender{conn: conn}
	channels := newSessionChannels()
	var streamSID string
	var execMu sync.Mutex
	var exec *Executor

	go func() {
		ctx := context.Background()
		for {
			select {
			case <-channels.done:
				return
			case ev := <-channels.events:
				execMu.Lock()
				e := exec
				execMu.Unlock()
				if e == nil {
					continue
				}
				if err := h.runner.Advance(ctx, sessionID, ev, e); err != nil {
					h.logger.Error("media stream: advance failed", "session_id", sessionID, "error", err)
				}
			}
		}
	}()

	defer close(channels.done)

	for {
		var frame InboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			channels.push(session.NormalizedEvent{Kind: session.EventSessionStopped, Token: sessionID})
			return
		}

		switch frame.Event {
		case FrameEventStart:
			streamSID = frame.StreamSID
			execMu.Lock()
			exec = NewExecutor(streamSID, sender, control, h.synth)
			execMu.Unlock()
			channels.push(session.NormalizedEvent{Kind: session.EventSessionStarted, Token: frame.StreamSID})
		case FrameEventMedia:
			// Inbound audio is currently consumed only for recording
			// capture (§4.7), not as FSM input; decoding validates the
			// frame without feeding a NormalizedEvent per frame, which
			// would otherwise flood the per-session event channel at a
			// 20ms cadence for no FSM-visible effect.
			if frame.Media != nil {
				if _, err := decodeMediaPayload(frame.Media.Payload); err != nil {
					h.logger.Debug("media stream: dropping malformed media frame", "session_id", sessionID, "error", err)
				}
			}
		case FrameEventDTMF:
			if frame.DTMF != nil {
				channels.push(session.NormalizedEvent{Kind: session.EventDTMF, Digit: frame.DTMF.Digit, Token: frame.StreamSID + ":" + frame.DTMF.Digit})
			}
		case FrameEventStop:
			channels.push(session.NormalizedEvent{Kind: session.EventSessionStopped, Token: frame.StreamSID})
			return
		}
	}
}

// idleGatherTimeout is an 8-second DTMF gather default for a
// session.Directive whose GatherTimeout is zero. It is unexported and
// nothing in the module reads it.
const idleGatherTimeout = 8 * time.Second
