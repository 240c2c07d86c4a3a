// Package recording implements the Idle -> Recording -> Idle capture cycle.
//
// Raw payloads accumulate in memory only while recording; the durable store
// sees a single immutable Recording artifact at stop time, with its own
// expiry decoupled from the owning session.
package recording

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/history"
	"github.com/voxroom/voxroom/pkg/session"
	"github.com/voxroom/voxroom/pkg/store"
)

const (
	// RecordingTTL bounds how long a stopped recording stays retrievable.
	RecordingTTL = 24 * time.Hour

	// HistorySnapshotLen is how many recent history entries a recording
	// captures at stop time.
	HistorySnapshotLen = 20
)

const recordingKeyPrefix = "voxroom:recording:"

func recordingKey(recordingID string) string {
	return recordingKeyPrefix + recordingID
}

type capture struct {
	startedAt time.Time
	points    []types.RawDataPoint
}

// Recorder drives the per-session recording state machine.
type Recorder struct {
	registry *session.Registry
	ledger   *history.Ledger
	store    store.Store
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*capture

	now   func() time.Time
	newID func() string
}

func NewRecorder(reg *session.Registry, ledger *history.Ledger, st store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		registry: reg,
		ledger:   ledger,
		store:    st,
		logger:   logger,
		active:   make(map[string]*capture),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// SetClock overrides the recorder's time source. Test hook.
func (rec *Recorder) SetClock(now func() time.Time) {
	rec.now = now
}

// Start transitions the session into Recording. Starting a session that is
// already recording fails with AlreadyRecording rather than silently
// resetting the accumulator.
func (rec *Recorder) Start(ctx context.Context, sessionID string) error {
	startedAt := rec.now()
	_, err := rec.registry.Mutate(ctx, sessionID, func(s *types.Session) error {
		if s.IsRecording {
			return core.NewAlreadyRecordingError(sessionID)
		}
		s.IsRecording = true
		t := startedAt
		s.RecordingStartedAt = &t
		return nil
	})
	if err != nil {
		return err
	}

	rec.mu.Lock()
	rec.active[sessionID] = &capture{startedAt: startedAt}
	rec.mu.Unlock()

	rec.logger.Info("recording started", "session_id", sessionID)
	return nil
}

// AppendRawData adds a timestamped payload to the in-memory accumulator.
// It is a no-op when the session is not recording, including after teardown;
// per-chunk persistence is deliberately avoided.
func (rec *Recorder) AppendRawData(sessionID string, payload []byte) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	c, ok := rec.active[sessionID]
	if !ok {
		return
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.points = append(c.points, types.RawDataPoint{Timestamp: rec.now(), Payload: buf})
}

// Stop finalizes the recording: persists the immutable artifact with its own
// expiry, appends its id to the session, clears the accumulator, and returns
// the Recording.
func (rec *Recorder) Stop(ctx context.Context, sessionID string) (*types.Recording, error) {
	// Claim the stop in one mutation so a second concurrent Stop sees the
	// cleared state and fails with NotRecording instead of producing a
	// duplicate artifact.
	var startedAt time.Time
	if _, err := rec.registry.Mutate(ctx, sessionID, func(s *types.Session) error {
		if !s.IsRecording || s.RecordingStartedAt == nil {
			return core.NewNotRecordingError(sessionID)
		}
		startedAt = *s.RecordingStartedAt
		s.IsRecording = false
		s.RecordingStartedAt = nil
		return nil
	}); err != nil {
		return nil, err
	}

	rec.mu.Lock()
	c := rec.active[sessionID]
	delete(rec.active, sessionID)
	rec.mu.Unlock()

	endedAt := rec.now()

	recording := &types.Recording{
		ID:        rec.newID(),
		SessionID: sessionID,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Duration:  endedAt.Sub(startedAt),
	}
	if c != nil {
		recording.RawData = c.points
	}
	if rec.ledger != nil {
		snapshot, err := rec.ledger.Read(ctx, sessionID, HistorySnapshotLen)
		if err == nil {
			recording.History = snapshot
		}
	}

	if err := store.SetJSON(ctx, rec.store, recordingKey(recording.ID), recording, RecordingTTL); err != nil {
		// Artifact persistence is load-bearing; put the claimed state and
		// accumulator back so the caller can retry the stop.
		rec.mu.Lock()
		if _, exists := rec.active[sessionID]; !exists && c != nil {
			rec.active[sessionID] = c
		}
		rec.mu.Unlock()
		if _, restoreErr := rec.registry.Mutate(ctx, sessionID, func(s *types.Session) error {
			s.IsRecording = true
			t := startedAt
			s.RecordingStartedAt = &t
			return nil
		}); restoreErr != nil {
			rec.logger.Warn("failed to restore recording state after persist failure",
				"session_id", sessionID, "error", restoreErr)
		}
		return nil, core.NewUnavailableError("recording store", err)
	}

	if _, err := rec.registry.Mutate(ctx, sessionID, func(s *types.Session) error {
		s.RecordingIDs = append(s.RecordingIDs, recording.ID)
		return nil
	}); err != nil {
		return nil, err
	}

	rec.logger.Info("recording stopped",
		"session_id", sessionID,
		"recording_id", recording.ID,
		"duration_ms", recording.Duration.Milliseconds(),
		"raw_points", len(recording.RawData))
	return recording, nil
}

// Get fetches a persisted recording. Expired or unknown ids fail with
// NotFound.
func (rec *Recorder) Get(ctx context.Context, recordingID string) (*types.Recording, error) {
	r, found, err := store.GetJSON[types.Recording](ctx, rec.store, recordingKey(recordingID))
	if err != nil {
		return nil, core.NewUnavailableError("recording store", err)
	}
	if !found {
		return nil, core.NewNotFoundError("recording " + recordingID + " not found")
	}
	return r, nil
}

// Discard drops any in-memory accumulator for the session. Wired to the
// registry's teardown hooks.
func (rec *Recorder) Discard(sessionID string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	delete(rec.active, sessionID)
}
