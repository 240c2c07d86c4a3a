package types

// ResponseEvent is emitted once per completed, non-discarded response cycle
// and fanned out by the transport to every participant of the session.
type ResponseEvent struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	AudioRef  string `json:"audio_ref,omitempty"`
	Language  string `json:"language"`
	Voice     string `json:"voice"`
}

// SessionContext is the slice of session state handed to the responder for
// one generation cycle.
type SessionContext struct {
	SessionID         string
	Language          string
	Voice             string
	SystemInstruction string
	History           []HistoryEntry
}
