package recognition

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/podium/internal/metrics"
)

// State is the recognition session lifecycle state.
type State string

const (
	StateIdle               State = "idle"
	StateListening          State = "listening"
	StateErroredRecoverable State = "errored_recoverable"
	StateErroredFatal       State = "errored_fatal"
	StateStopped            State = "stopped"
)

const (
	defaultBaseRestartDelay = 300 * time.Millisecond
	defaultRestartDelayStep = 200 * time.Millisecond
	defaultMaxAttempts      = 8
	defaultConfidence       = 0.9
)

// PersistRequest is the caption creation request emitted for each
// finalized segment with non-empty trimmed text.
type PersistRequest struct {
	RoomID     string
	SpeakerID  string
	Side       string
	Text       string
	Confidence float32
}

// PersistFunc receives caption creation requests. Implementations must
// not block: the session event loop calls it inline.
type PersistFunc func(req PersistRequest)

// cancelFunc cancels a scheduled restart. Returned by scheduleFunc.
type cancelFunc func()

// scheduleFunc schedules fn after d. Injectable so tests can capture
// restart delays without sleeping.
type scheduleFunc func(d time.Duration, fn func()) cancelFunc

// Options configures a recognition session for one speaker.
type Options struct {
	RoomID    string
	SpeakerID string
	// Side is resolved once at session start and stamped on every
	// caption this session emits. Mid-debate reassignment does not
	// retroactively change attribution.
	Side string

	AutoRestart      bool
	BaseRestartDelay time.Duration
	RestartDelayStep time.Duration
	MaxAttempts      int

	Persist PersistFunc
	// RequestStart asks the client to start (or restart) the host
	// recognizer. Called when a scheduled restart fires and on
	// explicit Start/Restart.
	RequestStart func()
	Log          zerolog.Logger

	// schedule overrides the restart timer; nil means time.AfterFunc.
	schedule scheduleFunc
}

// Snapshot is the externally visible session state, pushed to the
// speaker's client for live preview and status display.
type Snapshot struct {
	State        State  `json:"state"`
	AttemptCount int    `json:"attempt_count"`
	InterimText  string `json:"interim_text,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Session is the per-speaker recognition state machine. One session per
// speaker; sessions for different speakers are independent. All state
// is guarded by mu since recognizer events and restart timers arrive on
// different goroutines.
type Session struct {
	opts Options
	log  zerolog.Logger

	mu            sync.Mutex
	state         State
	attemptCount  int
	bufferedFinal strings.Builder
	interimText   string
	lastError     string
	fatalReported bool
	cancelRestart cancelFunc
}

// NewSession creates a session in the Idle state.
func NewSession(opts Options) *Session {
	if opts.BaseRestartDelay <= 0 {
		opts.BaseRestartDelay = defaultBaseRestartDelay
	}
	if opts.RestartDelayStep <= 0 {
		opts.RestartDelayStep = defaultRestartDelayStep
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.schedule == nil {
		opts.schedule = func(d time.Duration, fn func()) cancelFunc {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	return &Session{
		opts:  opts,
		log:   opts.Log.With().Str("room_id", opts.RoomID).Str("speaker_id", opts.SpeakerID).Logger(),
		state: StateIdle,
	}
}

// Start requests recognizer start for a session that has a resolved
// side. The session enters Listening when the host's started event
// arrives.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateErroredFatal {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.opts.RequestStart != nil {
		s.opts.RequestStart()
	}
}

// Restart is an explicit, user-initiated restart: it clears the retry
// budget, cancels any pending automatic restart, and requests a fresh
// recognizer start. Fatal sessions stay fatal.
func (s *Session) Restart() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateErroredFatal {
		s.mu.Unlock()
		return
	}
	s.cancelPendingLocked()
	s.attemptCount = 0
	s.mu.Unlock()

	if s.opts.RequestStart != nil {
		s.opts.RequestStart()
	}
}

// Stop ends the session permanently. Any pending restart timer is
// cancelled; the session must not restart afterward.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	if s.state != StateStopped {
		s.log.Debug().Str("prev_state", string(s.state)).Msg("session stopped")
	}
	s.state = StateStopped
	s.interimText = ""
}

// HandleEvent drives the state machine with one recognizer event.
func (s *Session) HandleEvent(ev Event) {
	switch ev.Type {
	case EventStarted:
		s.onStarted()
	case EventResult:
		s.onResult(ev)
	case EventEnded:
		s.onEnded()
	case EventError:
		s.onError(ev.Code)
	}
}

func (s *Session) onStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped || s.state == StateErroredFatal {
		return
	}
	s.cancelPendingLocked()
	s.state = StateListening
	s.lastError = ""
	s.log.Debug().Msg("recognizer listening")
}

func (s *Session) onResult(ev Event) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}

	if !ev.IsFinal {
		// Interim text is live-preview only. It never reaches storage.
		s.interimText = ev.Text
		s.mu.Unlock()
		return
	}

	text := strings.TrimSpace(ev.Text)
	s.interimText = ""
	if text == "" {
		s.mu.Unlock()
		return
	}
	if s.bufferedFinal.Len() > 0 {
		s.bufferedFinal.WriteByte(' ')
	}
	s.bufferedFinal.WriteString(text)

	conf := float32(defaultConfidence)
	if ev.Confidence != nil {
		conf = clampConfidence(*ev.Confidence)
	}
	side := s.opts.Side
	s.mu.Unlock()

	if side == "" || s.opts.Persist == nil {
		return
	}
	s.opts.Persist(PersistRequest{
		RoomID:     s.opts.RoomID,
		SpeakerID:  s.opts.SpeakerID,
		Side:       side,
		Text:       text,
		Confidence: conf,
	})
}

// onEnded handles a session-end signal from the recognizer. With
// auto-restart enabled an unsolicited end is treated as recoverable;
// otherwise the session returns to Idle.
func (s *Session) onEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped || s.state == StateErroredFatal {
		return
	}
	s.interimText = ""

	if !s.opts.AutoRestart {
		s.state = StateIdle
		return
	}
	s.scheduleRestartLocked("ended")
}

func (s *Session) onError(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.interimText = ""
	s.lastError = code

	switch ClassifyError(code) {
	case ErrorUnsupported, ErrorPermissionDenied:
		s.cancelPendingLocked()
		s.state = StateErroredFatal
		if !s.fatalReported {
			s.fatalReported = true
			s.log.Error().Str("code", code).Msg("recognizer fatal error, no restart")
		}
	case ErrorTransient:
		if s.state == StateErroredFatal {
			return
		}
		if !s.opts.AutoRestart {
			s.state = StateIdle
			return
		}
		s.scheduleRestartLocked(code)
	}
}

// scheduleRestartLocked schedules the next automatic restart with a
// delay that grows with the attempt count. Only one timer may be
// pending; any prior timer is cancelled first so duplicate recognizer
// instances cannot race. Exceeding the attempt cap is fatal.
func (s *Session) scheduleRestartLocked(reason string) {
	s.cancelPendingLocked()

	if s.attemptCount >= s.opts.MaxAttempts {
		s.state = StateErroredFatal
		if !s.fatalReported {
			s.fatalReported = true
			s.log.Error().
				Int("attempts", s.attemptCount).
				Msg("restart attempt cap exhausted, giving up")
		}
		return
	}

	delay := s.opts.BaseRestartDelay + time.Duration(s.attemptCount)*s.opts.RestartDelayStep
	s.attemptCount++
	s.state = StateErroredRecoverable
	metrics.RestartsScheduledTotal.Inc()

	s.log.Debug().
		Str("reason", reason).
		Int("attempt", s.attemptCount).
		Dur("delay", delay).
		Msg("scheduling recognizer restart")

	s.cancelRestart = s.opts.schedule(delay, func() {
		s.mu.Lock()
		if s.state != StateErroredRecoverable {
			s.mu.Unlock()
			return
		}
		s.cancelRestart = nil
		s.mu.Unlock()
		if s.opts.RequestStart != nil {
			s.opts.RequestStart()
		}
	})
}

func (s *Session) cancelPendingLocked() {
	if s.cancelRestart != nil {
		s.cancelRestart()
		s.cancelRestart = nil
	}
}

// Snapshot returns the current externally visible session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:        s.state,
		AttemptCount: s.attemptCount,
		InterimText:  s.interimText,
		LastError:    s.lastError,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BufferedFinalText returns the finalized text accumulated since the
// last ClearBuffered call.
func (s *Session) BufferedFinalText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferedFinal.String()
}

// ClearBuffered discards the accumulated finalized text.
func (s *Session) ClearBuffered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bufferedFinal.Reset()
}

func clampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
