package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/podium/internal/aggregate"
	"github.com/snarg/podium/internal/recognition"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser speakers connect from the web client's origin; access
	// control is the bearer token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SessionRegistry tracks live recognition sessions so shutdown can stop
// them and metrics can count them.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[*recognition.Session]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[*recognition.Session]struct{})}
}

func (reg *SessionRegistry) add(s *recognition.Session) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.sessions[s] = struct{}{}
}

func (reg *SessionRegistry) remove(s *recognition.Session) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.sessions, s)
}

// Count returns the number of live sessions.
func (reg *SessionRegistry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.sessions)
}

// StopAll stops every live session. Called on shutdown.
func (reg *SessionRegistry) StopAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for s := range reg.sessions {
		s.Stop()
	}
}

type SpeechHandler struct {
	persist  recognition.PersistFunc
	registry *SessionRegistry
	tuning   recognition.Options // restart tuning template, per-speaker fields ignored
	log      zerolog.Logger
}

// NewSpeechHandler creates the WebSocket endpoint for speaker clients.
// tuning supplies AutoRestart and the restart delay/attempt settings;
// its identity fields are overwritten per connection.
func NewSpeechHandler(persist recognition.PersistFunc, registry *SessionRegistry, tuning recognition.Options, log zerolog.Logger) *SpeechHandler {
	return &SpeechHandler{persist: persist, registry: registry, tuning: tuning, log: log}
}

func (h *SpeechHandler) Routes(r chi.Router) {
	r.Get("/rooms/{roomID}/speech", h.Speak)
}

// serverMessage is one frame pushed to the speaker's client: either a
// control instruction or a session state snapshot.
type serverMessage struct {
	Type    string                `json:"type"` // "start" or "state"
	Session *recognition.Snapshot `json:"session,omitempty"`
}

// Speak upgrades the connection and runs one recognition session for the
// connected speaker. The client relays recognizer events as JSON frames;
// the server replies with state snapshots and start instructions.
func (h *SpeechHandler) Speak(w http.ResponseWriter, r *http.Request) {
	roomID, err := PathString(r, "roomID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	speakerID, ok := QueryString(r, "speaker_id")
	if !ok {
		WriteError(w, http.StatusBadRequest, "speaker_id is required")
		return
	}

	// Side is resolved once here; an unsided connection produces live
	// preview but no persisted captions.
	side := r.URL.Query().Get("side")
	if side != "" && side != aggregate.SideA && side != aggregate.SideB {
		WriteError(w, http.StatusBadRequest, "side must be side_a or side_b")
		return
	}

	autoRestart := true
	if v, ok := QueryBool(r, "auto_restart"); ok {
		autoRestart = v
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Session callbacks fire from restart timer goroutines too, so
	// writes to the socket are serialized.
	var writeMu sync.Mutex
	send := func(msg serverMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(msg)
	}

	session := recognition.NewSession(recognition.Options{
		RoomID:           roomID,
		SpeakerID:        speakerID,
		Side:             side,
		AutoRestart:      autoRestart,
		BaseRestartDelay: h.tuning.BaseRestartDelay,
		RestartDelayStep: h.tuning.RestartDelayStep,
		MaxAttempts:      h.tuning.MaxAttempts,
		Persist:          h.persist,
		RequestStart:     func() { send(serverMessage{Type: "start"}) },
		Log:              h.log,
	})

	h.registry.add(session)
	defer func() {
		session.Stop()
		h.registry.remove(session)
	}()

	log := h.log.With().Str("room_id", roomID).Str("speaker_id", speakerID).Logger()
	log.Info().Str("side", side).Bool("auto_restart", autoRestart).Msg("speaker connected")

	session.Start()

	for {
		var ev recognition.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("speaker connection lost")
			} else {
				log.Info().Msg("speaker disconnected")
			}
			return
		}

		session.HandleEvent(ev)

		snap := session.Snapshot()
		send(serverMessage{Type: "state", Session: &snap})
	}
}
