package recognition

// EventType identifies a recognizer lifecycle event forwarded by the
// speaker's client. The host recognizer runs client-side (continuous
// mode, interim results); the client relays its events verbatim.
type EventType string

const (
	EventStarted EventType = "started"
	EventResult  EventType = "result"
	EventEnded   EventType = "ended"
	EventError   EventType = "error"
)

// Event is one recognizer event as received from the speaker's client.
type Event struct {
	Type       EventType `json:"type"`
	Text       string    `json:"text,omitempty"`
	IsFinal    bool      `json:"is_final,omitempty"`
	Confidence *float32  `json:"confidence,omitempty"`
	Code       string    `json:"code,omitempty"` // host error code, error events only
}

// ErrorKind classifies host recognizer error codes into the engine's
// taxonomy. Transient errors trigger bounded auto-restart; fatal ones
// stop the session until explicit operator action.
type ErrorKind string

const (
	ErrorUnsupported      ErrorKind = "unsupported"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorTransient        ErrorKind = "transient"
)

// ClassifyError maps a host recognizer error code to an ErrorKind.
// Unknown codes are treated as transient so a flaky host doesn't
// permanently kill a session.
func ClassifyError(code string) ErrorKind {
	switch code {
	case "unsupported", "language-not-supported":
		return ErrorUnsupported
	case "not-allowed", "service-not-allowed", "permission-denied":
		return ErrorPermissionDenied
	case "no-speech", "network", "aborted", "audio-capture":
		return ErrorTransient
	default:
		return ErrorTransient
	}
}
