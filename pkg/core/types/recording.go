package types

import "time"

// RawDataPoint is a timestamped opaque payload accumulated while recording.
type RawDataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"payload"`
}

// Recording is an immutable artifact built at stop-recording time. It is
// persisted independently of the owning session with its own expiry; its
// History field is a snapshot taken at stop time, not a live reference.
type Recording struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Duration  time.Duration  `json:"duration"`
	RawData   []RawDataPoint `json:"raw_data,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`
}
