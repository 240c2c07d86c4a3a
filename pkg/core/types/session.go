package types

import (
	"slices"
	"time"
)

// Settings holds per-session feature toggles.
type Settings struct {
	AutoTranslate bool `json:"auto_translate"`
	VoiceOutput   bool `json:"voice_output"`
	Subtitles     bool `json:"subtitles"`
}

// Session is a logical multi-participant conversation scope. The authoritative
// copy lives in the registry's memory cache while the session is active and in
// the durable store otherwise.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Language     string    `json:"language"`
	Voice        string    `json:"voice"`
	Participants []string  `json:"participants"`
	Settings     Settings  `json:"settings"`

	IsRecording        bool       `json:"is_recording"`
	RecordingStartedAt *time.Time `json:"recording_started_at,omitempty"`
	RecordingIDs       []string   `json:"recording_ids,omitempty"`

	// History is hydrated from the ledger on join; it is a read-only view and
	// is not part of the persisted session value.
	History []HistoryEntry `json:"history,omitempty"`
}

// HasParticipant reports whether the participant has joined the session.
func (s *Session) HasParticipant(participantID string) bool {
	return slices.Contains(s.Participants, participantID)
}

// Touch advances LastActivity, never moving it backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// Clone returns a deep copy so callers can hand sessions across goroutines
// without sharing the registry's cached slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Participants = slices.Clone(s.Participants)
	out.RecordingIDs = slices.Clone(s.RecordingIDs)
	out.History = slices.Clone(s.History)
	if s.RecordingStartedAt != nil {
		t := *s.RecordingStartedAt
		out.RecordingStartedAt = &t
	}
	return &out
}
