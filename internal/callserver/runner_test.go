package callserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shiftline/shiftline/internal/clock"
	"github.com/shiftline/shiftline/internal/session"
	"github.com/shiftline/shiftline/internal/telephony"
)

// memStore is an in-memory session.Store, grounded on the same
// critical-section contract the Redis-backed store honors, for exercising
// Runner without a live Redis instance.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*session.CallSession
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*session.CallSession{}}
}

func (m *memStore) Save(ctx context.Context, s *session.CallSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) Load(ctx context.Context, id string) (*session.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

// fakeSender/fakeControl/fakeSynth satisfy telephony's Executor
// collaborator interfaces without a live carrier connection.
type fakeSender struct {
	frames []telephony.OutboundFrame
}

func (f *fakeSender) SendFrame(fr telephony.OutboundFrame) error {
	f.frames = append(f.frames, fr)
	return nil
}

type fakeControl struct {
	hungUp     bool
	transfers  int
	recordings int
}

func (f *fakeControl) Transfer(ctx context.Context, target string, timeout time.Duration) error {
	f.transfers++
	return nil
}

func (f *fakeControl) Hangup(ctx context.Context) error {
	f.hungUp = true
	return nil
}

func (f *fakeControl) StartRecording(ctx context.Context, stereo bool) error {
	f.recordings++
	return nil
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("audio:" + text), nil
}

// fakeAuth always reports no matching worker, driving the FSM down its
// PIN-prompt fallback path without needing a live Catalog.
type fakeAuth struct{}

func (fakeAuth) ByPhone(ctx context.Context, e164 string) (*session.Worker, []session.Provider, error) {
	return nil, nil, nil
}

func (fakeAuth) ByPin(ctx context.Context, pin string) (*session.Worker, []session.Provider, error) {
	return nil, nil, nil
}

func testCaps() session.Capabilities {
	return session.Capabilities{
		Auth:   fakeAuth{},
		Clock:  clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Config: session.DefaultFSMConfig(),
	}
}

func TestRunner_StartSession_PersistsNewSession(t *testing.T) {
	store := newMemStore()
	r := New(store, testCaps(), clock.NewMock(time.Now()), nil, nil)

	if err := r.StartSession("sess-1", "inbound", "+15551234567"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	s, err := store.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.CallerPhone != "+15551234567" {
		t.Fatalf("CallerPhone = %q, want +15551234567", s.CallerPhone)
	}
	if s.Phase != session.PhasePhoneAuth {
		t.Fatalf("Phase = %q, want %q", s.Phase, session.PhasePhoneAuth)
	}
}

func TestRunner_Advance_SavesStateAndExecutesDirectives(t *testing.T) {
	store := newMemStore()
	clk := clock.NewMock(time.Now())
	r := New(store, testCaps(), clk, nil, nil)

	if err := r.StartSession("sess-2", "inbound", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	sender := &fakeSender{}
	control := &fakeControl{}
	exec := telephony.NewExecutor("stream-1", sender, control, fakeSynth{})

	ev := session.NormalizedEvent{Kind: session.EventSessionStarted}
	if err := r.Advance(context.Background(), "sess-2", ev, exec); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	s, err := store.Load(context.Background(), "sess-2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.LastDirectives == nil && len(sender.frames) == 0 && !control.hungUp {
		t.Fatalf("expected Advance to have produced and executed at least one directive")
	}
}

func TestRunner_RecordingContextFor_ResolvesIdentifiers(t *testing.T) {
	store := newMemStore()
	r := New(store, testCaps(), clock.NewMock(time.Now()), nil, nil)

	s := session.NewCallSession("sess-3", session.DirectionInbound, "+15551234567", time.Now())
	s.RootID = "root-3"
	s.Provider = &session.Provider{ID: "prov-9"}
	s.Worker = &session.Worker{ID: "worker-4"}
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	providerID, workerID, rootCallID, err := r.RecordingContextFor("sess-3")
	if err != nil {
		t.Fatalf("RecordingContextFor: %v", err)
	}
	if providerID != "prov-9" || workerID != "worker-4" || rootCallID != "root-3" {
		t.Fatalf("got (%q, %q, %q)", providerID, workerID, rootCallID)
	}
}

func TestRunner_RecordingContextFor_UnknownSession(t *testing.T) {
	store := newMemStore()
	r := New(store, testCaps(), clock.NewMock(time.Now()), nil, nil)

	if _, _, _, err := r.RecordingContextFor("missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
