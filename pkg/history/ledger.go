// Package history implements the append-only, length-bounded interaction log.
//
// History is advisory: when the durable store is unreachable, appends are
// dropped and reads come back empty rather than failing the caller. The live
// response path must never stall on history trouble.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/store"
)

// MaxEntries is the per-session history cap; oldest entries are evicted first.
const MaxEntries = 100

const historyKeyPrefix = "voxroom:history:"

func historyKey(sessionID string) string {
	return historyKeyPrefix + sessionID
}

// Ledger appends and reads per-session history through the store's list
// primitives. Entries are stored newest-first; Read restores chronological
// order for callers.
type Ledger struct {
	store  store.Store
	logger *slog.Logger
	ttl    time.Duration

	now   func() time.Time
	newID func() string
}

func NewLedger(st store.Store, ttl time.Duration, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Ledger{
		store:  st,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// SetClock overrides the ledger's time source. Test hook.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Append assigns the entry an id and timestamp (a caller-supplied timestamp
// wins), pushes it to the front of the session's list, and trims the list to
// MaxEntries. Returns the stored entry; store failures degrade to returning
// the entry un-persisted.
func (l *Ledger) Append(ctx context.Context, sessionID string, entry types.HistoryEntry) types.HistoryEntry {
	entry.ID = l.newID()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("history append: marshal failed", "session_id", sessionID, "error", err)
		return entry
	}

	key := historyKey(sessionID)
	if err := l.store.ListPush(ctx, key, string(raw), l.ttl); err != nil {
		l.logger.Warn("history append: push failed", "session_id", sessionID, "error", err)
		return entry
	}
	if err := l.store.ListTrim(ctx, key, 0, MaxEntries-1); err != nil {
		l.logger.Warn("history append: trim failed", "session_id", sessionID, "error", err)
	}
	return entry
}

// Read returns the most recent limit entries in chronological order (oldest
// first). Store failures degrade to an empty result.
func (l *Ledger) Read(ctx context.Context, sessionID string, limit int) ([]types.HistoryEntry, error) {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}

	raws, err := l.store.ListRange(ctx, historyKey(sessionID), 0, int64(limit-1))
	if err != nil {
		l.logger.Warn("history read failed", "session_id", sessionID, "error", err)
		return nil, nil
	}

	// Stored newest-first; decode back-to-front to hand out oldest-first.
	entries := make([]types.HistoryEntry, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var e types.HistoryEntry
		if err := json.Unmarshal([]byte(raws[i]), &e); err != nil {
			l.logger.Warn("history read: bad entry skipped", "session_id", sessionID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes the session's entire history list.
func (l *Ledger) Delete(ctx context.Context, sessionID string) error {
	return l.store.Del(ctx, historyKey(sessionID))
}
