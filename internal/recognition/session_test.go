package recognition

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeScheduler records scheduled restart delays and lets tests fire or
// cancel them explicitly instead of sleeping.
type fakeScheduler struct {
	delays    []time.Duration
	pending   []func()
	cancelled int
}

func (f *fakeScheduler) schedule(d time.Duration, fn func()) cancelFunc {
	f.delays = append(f.delays, d)
	f.pending = append(f.pending, fn)
	return func() { f.cancelled++ }
}

func (f *fakeScheduler) fireLast() {
	if len(f.pending) > 0 {
		f.pending[len(f.pending)-1]()
	}
}

func newTestSession(t *testing.T, opts Options) (*Session, *fakeScheduler) {
	t.Helper()
	fs := &fakeScheduler{}
	opts.Log = zerolog.Nop()
	opts.schedule = fs.schedule
	if opts.RoomID == "" {
		opts.RoomID = "room-1"
	}
	if opts.SpeakerID == "" {
		opts.SpeakerID = "speaker-1"
	}
	return NewSession(opts), fs
}

func conf(v float32) *float32 { return &v }

// ── Finalized segments and caption emission ──────────────────────────

func TestSessionFinalSegmentEmitsPersist(t *testing.T) {
	var got []PersistRequest
	s, _ := newTestSession(t, Options{
		Side:    "side_a",
		Persist: func(req PersistRequest) { got = append(got, req) },
	})

	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventResult, Text: "  opening statement  ", IsFinal: true, Confidence: conf(0.95)})

	if len(got) != 1 {
		t.Fatalf("persist requests = %d, want 1", len(got))
	}
	req := got[0]
	if req.Text != "opening statement" {
		t.Errorf("Text = %q, want trimmed %q", req.Text, "opening statement")
	}
	if req.Side != "side_a" {
		t.Errorf("Side = %q, want side_a", req.Side)
	}
	if req.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", req.Confidence)
	}
	if req.RoomID != "room-1" || req.SpeakerID != "speaker-1" {
		t.Errorf("attribution = %s/%s, want room-1/speaker-1", req.RoomID, req.SpeakerID)
	}
}

func TestSessionPersistConfidenceHandling(t *testing.T) {
	tests := []struct {
		name string
		in   *float32
		want float32
	}{
		{"host_omits_confidence_defaults", nil, 0.9},
		{"negative_clamps_to_zero", conf(-0.5), 0},
		{"above_one_clamps", conf(1.7), 1},
		{"in_range_passes_through", conf(0.42), 0.42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []PersistRequest
			s, _ := newTestSession(t, Options{
				Side:    "side_b",
				Persist: func(req PersistRequest) { got = append(got, req) },
			})
			s.HandleEvent(Event{Type: EventStarted})
			s.HandleEvent(Event{Type: EventResult, Text: "x", IsFinal: true, Confidence: tt.in})

			if len(got) != 1 {
				t.Fatalf("persist requests = %d, want 1", len(got))
			}
			if got[0].Confidence != tt.want {
				t.Errorf("Confidence = %v, want %v", got[0].Confidence, tt.want)
			}
		})
	}
}

func TestSessionInterimNeverPersisted(t *testing.T) {
	var got []PersistRequest
	s, _ := newTestSession(t, Options{
		Side:    "side_a",
		Persist: func(req PersistRequest) { got = append(got, req) },
	})

	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventResult, Text: "partial thou", IsFinal: false})
	s.HandleEvent(Event{Type: EventResult, Text: "partial thought", IsFinal: false})

	if len(got) != 0 {
		t.Fatalf("interim results emitted %d persist requests, want 0", len(got))
	}
	if snap := s.Snapshot(); snap.InterimText != "partial thought" {
		t.Errorf("InterimText = %q, want live preview of latest interim", snap.InterimText)
	}

	// Finalizing clears the preview and persists only the final text.
	s.HandleEvent(Event{Type: EventResult, Text: "partial thought completed", IsFinal: true})
	if len(got) != 1 {
		t.Fatalf("persist requests = %d, want 1", len(got))
	}
	if snap := s.Snapshot(); snap.InterimText != "" {
		t.Errorf("InterimText = %q after final, want empty", snap.InterimText)
	}
}

func TestSessionEmptyFinalSkipped(t *testing.T) {
	var got []PersistRequest
	s, _ := newTestSession(t, Options{
		Side:    "side_a",
		Persist: func(req PersistRequest) { got = append(got, req) },
	})
	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventResult, Text: "   ", IsFinal: true})

	if len(got) != 0 {
		t.Errorf("whitespace-only final emitted %d persist requests, want 0", len(got))
	}
}

func TestSessionUnresolvedSideSkipsPersist(t *testing.T) {
	var got []PersistRequest
	s, _ := newTestSession(t, Options{
		Side:    "",
		Persist: func(req PersistRequest) { got = append(got, req) },
	})
	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventResult, Text: "unattributed", IsFinal: true})

	if len(got) != 0 {
		t.Errorf("session without resolved side emitted %d persist requests, want 0", len(got))
	}
}

func TestSessionBufferedFinalText(t *testing.T) {
	s, _ := newTestSession(t, Options{Side: "side_a"})
	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventResult, Text: "first segment", IsFinal: true})
	s.HandleEvent(Event{Type: EventResult, Text: "second segment", IsFinal: true})

	if got := s.BufferedFinalText(); got != "first segment second segment" {
		t.Errorf("BufferedFinalText = %q", got)
	}

	s.ClearBuffered()
	if got := s.BufferedFinalText(); got != "" {
		t.Errorf("BufferedFinalText after clear = %q, want empty", got)
	}
}

// ── State transitions ────────────────────────────────────────────────

func TestSessionStartedEntersListening(t *testing.T) {
	s, _ := newTestSession(t, Options{Side: "side_a"})
	if s.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", s.State())
	}
	s.HandleEvent(Event{Type: EventStarted})
	if s.State() != StateListening {
		t.Errorf("state = %s, want listening", s.State())
	}
}

func TestSessionCleanEndWithoutAutoRestart(t *testing.T) {
	s, fs := newTestSession(t, Options{Side: "side_a", AutoRestart: false})
	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventEnded})

	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
	if len(fs.delays) != 0 {
		t.Errorf("scheduled %d restarts, want 0", len(fs.delays))
	}
}

func TestSessionPermissionDeniedIsFatal(t *testing.T) {
	s, fs := newTestSession(t, Options{Side: "side_a", AutoRestart: true})
	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventError, Code: "not-allowed"})

	if s.State() != StateErroredFatal {
		t.Errorf("state = %s, want errored_fatal", s.State())
	}
	if len(fs.delays) != 0 {
		t.Errorf("scheduled %d restarts after permission denial, want 0", len(fs.delays))
	}

	// Fatal sessions ignore further restart attempts.
	s.Restart()
	s.HandleEvent(Event{Type: EventEnded})
	if len(fs.delays) != 0 {
		t.Errorf("fatal session scheduled %d restarts, want 0", len(fs.delays))
	}
	if snap := s.Snapshot(); snap.LastError != "not-allowed" {
		t.Errorf("LastError = %q, want not-allowed", snap.LastError)
	}
}

func TestSessionUnsupportedIsFatal(t *testing.T) {
	s, fs := newTestSession(t, Options{Side: "side_a", AutoRestart: true})
	s.HandleEvent(Event{Type: EventError, Code: "unsupported"})

	if s.State() != StateErroredFatal {
		t.Errorf("state = %s, want errored_fatal", s.State())
	}
	if len(fs.delays) != 0 {
		t.Errorf("scheduled %d restarts, want 0", len(fs.delays))
	}
}

// ── Auto-restart scheduling ──────────────────────────────────────────

func TestSessionNoSpeechRestartsIncreasingDelays(t *testing.T) {
	s, fs := newTestSession(t, Options{
		Side:             "side_a",
		AutoRestart:      true,
		BaseRestartDelay: 100 * time.Millisecond,
		RestartDelayStep: 50 * time.Millisecond,
		MaxAttempts:      8,
	})

	s.HandleEvent(Event{Type: EventStarted})
	for i := 0; i < 5; i++ {
		s.HandleEvent(Event{Type: EventError, Code: "no-speech"})
	}

	if len(fs.delays) != 5 {
		t.Fatalf("scheduled %d restarts, want 5", len(fs.delays))
	}
	for i := 1; i < len(fs.delays); i++ {
		if fs.delays[i] <= fs.delays[i-1] {
			t.Errorf("delay[%d] = %v not strictly greater than delay[%d] = %v",
				i, fs.delays[i], i-1, fs.delays[i-1])
		}
	}
	if fs.delays[0] != 100*time.Millisecond {
		t.Errorf("first delay = %v, want base 100ms", fs.delays[0])
	}
	if s.State() != StateErroredRecoverable {
		t.Errorf("state = %s, want errored_recoverable (cap not hit)", s.State())
	}
	if snap := s.Snapshot(); snap.AttemptCount != 5 {
		t.Errorf("AttemptCount = %d, want 5", snap.AttemptCount)
	}
}

func TestSessionAttemptCapExhaustionIsFatal(t *testing.T) {
	s, fs := newTestSession(t, Options{
		Side:        "side_a",
		AutoRestart: true,
		MaxAttempts: 3,
	})

	s.HandleEvent(Event{Type: EventStarted})
	for i := 0; i < 4; i++ {
		s.HandleEvent(Event{Type: EventError, Code: "network"})
	}

	if len(fs.delays) != 3 {
		t.Errorf("scheduled %d restarts, want 3 (cap)", len(fs.delays))
	}
	if s.State() != StateErroredFatal {
		t.Errorf("state = %s, want errored_fatal after cap", s.State())
	}

	// Nothing further may be scheduled once fatal.
	s.HandleEvent(Event{Type: EventError, Code: "network"})
	if len(fs.delays) != 3 {
		t.Errorf("scheduled %d restarts after fatal, want 3", len(fs.delays))
	}
}

func TestSessionSinglePendingTimer(t *testing.T) {
	s, fs := newTestSession(t, Options{Side: "side_a", AutoRestart: true, MaxAttempts: 8})

	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventError, Code: "no-speech"})
	s.HandleEvent(Event{Type: EventError, Code: "network"})

	// The second schedule must cancel the first pending timer.
	if fs.cancelled != 1 {
		t.Errorf("cancelled %d prior timers, want 1", fs.cancelled)
	}
	if len(fs.delays) != 2 {
		t.Errorf("scheduled %d restarts, want 2", len(fs.delays))
	}
}

func TestSessionRestartTimerFiresRequestsStart(t *testing.T) {
	starts := 0
	s, fs := newTestSession(t, Options{
		Side:         "side_a",
		AutoRestart:  true,
		RequestStart: func() { starts++ },
	})

	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventError, Code: "no-speech"})

	fs.fireLast()
	if starts != 1 {
		t.Fatalf("RequestStart called %d times, want 1", starts)
	}

	// The host acknowledges with a started event; attempts carry over
	// until an explicit restart resets them.
	s.HandleEvent(Event{Type: EventStarted})
	if s.State() != StateListening {
		t.Errorf("state = %s, want listening", s.State())
	}
	if snap := s.Snapshot(); snap.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1 (auto-restart does not reset)", snap.AttemptCount)
	}
}

func TestSessionExplicitRestartResetsAttempts(t *testing.T) {
	starts := 0
	s, _ := newTestSession(t, Options{
		Side:         "side_a",
		AutoRestart:  true,
		RequestStart: func() { starts++ },
	})

	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventError, Code: "no-speech"})
	s.HandleEvent(Event{Type: EventError, Code: "no-speech"})
	if snap := s.Snapshot(); snap.AttemptCount != 2 {
		t.Fatalf("AttemptCount = %d, want 2", snap.AttemptCount)
	}

	s.Restart()
	if snap := s.Snapshot(); snap.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d after explicit restart, want 0", snap.AttemptCount)
	}
	if starts != 1 {
		t.Errorf("RequestStart called %d times, want 1", starts)
	}
}

func TestSessionStopCancelsPendingRestart(t *testing.T) {
	starts := 0
	s, fs := newTestSession(t, Options{
		Side:         "side_a",
		AutoRestart:  true,
		RequestStart: func() { starts++ },
	})

	s.HandleEvent(Event{Type: EventStarted})
	s.HandleEvent(Event{Type: EventError, Code: "no-speech"})
	s.Stop()

	if s.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", s.State())
	}
	if fs.cancelled != 1 {
		t.Errorf("cancelled %d timers on stop, want 1", fs.cancelled)
	}

	// Even if the timer callback races the cancel, a stopped session
	// must not restart.
	fs.fireLast()
	if starts != 0 {
		t.Errorf("RequestStart called %d times after stop, want 0", starts)
	}

	s.HandleEvent(Event{Type: EventStarted})
	if s.State() != StateStopped {
		t.Errorf("state = %s after stop, want stopped", s.State())
	}
}

// ── Error classification ─────────────────────────────────────────────

func TestClassifyError(t *testing.T) {
	tests := []struct {
		code string
		want ErrorKind
	}{
		{"no-speech", ErrorTransient},
		{"network", ErrorTransient},
		{"aborted", ErrorTransient},
		{"audio-capture", ErrorTransient},
		{"not-allowed", ErrorPermissionDenied},
		{"service-not-allowed", ErrorPermissionDenied},
		{"unsupported", ErrorUnsupported},
		{"language-not-supported", ErrorUnsupported},
		{"something-new", ErrorTransient},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ClassifyError(tt.code); got != tt.want {
				t.Errorf("ClassifyError(%q) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}
