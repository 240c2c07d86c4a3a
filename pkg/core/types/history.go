package types

import "time"

// HistoryEntry is one completed user/AI interaction pair. Entries are
// immutable once appended to the ledger.
type HistoryEntry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	UserText  string        `json:"user_text"`
	AIText    string        `json:"ai_text"`
	Language  string        `json:"language"`
	Voice     string        `json:"voice"`
	AudioRef  string        `json:"audio_ref,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}
