// Package session owns session and participant lifecycle.
//
// The registry is a cache with write-through persistence: every mutating call
// persists to the durable store before publishing the in-memory copy, and
// reads fall back to the store on a cache miss. The memory cache exists purely
// for latency and is process-local; the store is the sole basis for
// cross-process consistency, so multi-node deployments must sticky-route
// sessions to one owning process.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/store"
)

const sessionKeyPrefix = "voxroom:session:"

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// HistoryProvider is the slice of the history ledger the registry needs:
// hydration on join and deletion on teardown.
type HistoryProvider interface {
	Read(ctx context.Context, sessionID string, limit int) ([]types.HistoryEntry, error)
	Delete(ctx context.Context, sessionID string) error
}

// Options carries caller-supplied overrides for create and join.
type Options struct {
	Language string
	Voice    string
	Settings *types.Settings
}

// Updates carries the mergeable fields of an update call. Nil fields are left
// untouched.
type Updates struct {
	Language *string
	Voice    *string
	Settings *types.Settings
}

// Config holds registry defaults and limits.
type Config struct {
	DefaultLanguage string
	DefaultVoice    string
	SessionTTL      time.Duration
	HistoryLimit    int
}

// Registry owns all live session state for the process. Construct one per
// process and pass it explicitly to the transport layer and the coordinator.
type Registry struct {
	cfg     Config
	store   store.Store
	history HistoryProvider
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*types.Session

	// onTeardown hooks run synchronously after a session is fully removed,
	// letting the coordinator and recorder drop their volatile state.
	teardownMu sync.Mutex
	onTeardown []func(sessionID string)

	now   func() time.Time
	newID func() string
}

func NewRegistry(cfg Config, st store.Store, hist HistoryProvider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "default"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	return &Registry{
		cfg:     cfg,
		store:   st,
		history: hist,
		logger:  logger,
		cache:   make(map[string]*types.Session),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// SetClock overrides the registry's time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// OnTeardown registers a hook invoked after full session teardown.
func (r *Registry) OnTeardown(fn func(sessionID string)) {
	r.teardownMu.Lock()
	defer r.teardownMu.Unlock()
	r.onTeardown = append(r.onTeardown, fn)
}

// Create builds a new session from defaults merged with opts, persists it,
// then caches it.
func (r *Registry) Create(ctx context.Context, opts Options) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := r.newSessionLocked(r.newID(), now, opts)
	if err := r.persistLocked(ctx, s); err != nil {
		return nil, err
	}
	r.cache[s.ID] = s
	return s.Clone(), nil
}

// Join adds a participant to the session, creating it implicitly if it exists
// nowhere. Adding an already-present participant is idempotent. The returned
// session has its History hydrated from the ledger (best effort).
func (r *Registry) Join(ctx context.Context, sessionID, participantID string, opts Options) (*types.Session, error) {
	if sessionID == "" {
		return nil, core.NewInvalidArgumentErrorWithParam("session id is required", "session_id")
	}
	if participantID == "" {
		return nil, core.NewInvalidArgumentErrorWithParam("participant id is required", "participant_id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s, err := r.lookupLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = r.newSessionLocked(sessionID, now, opts)
	}

	if !s.HasParticipant(participantID) {
		s.Participants = append(s.Participants, participantID)
	}
	if opts.Language != "" {
		s.Language = opts.Language
	}
	if opts.Voice != "" {
		s.Voice = opts.Voice
	}
	if opts.Settings != nil {
		s.Settings = *opts.Settings
	}
	s.Touch(now)

	if err := r.persistLocked(ctx, s); err != nil {
		return nil, err
	}
	r.cache[s.ID] = s

	out := s.Clone()
	out.History = r.hydrateHistory(ctx, sessionID)
	return out, nil
}

// Leave removes a participant. Removing the last participant tears the
// session down synchronously: cache entry, persisted session, history, and
// any volatile live/recording state via the teardown hooks. Leaving a session
// that is already gone is a no-op.
func (r *Registry) Leave(ctx context.Context, sessionID, participantID string) error {
	r.mu.Lock()

	s, err := r.lookupLocked(ctx, sessionID)
	if err != nil {
		r.mu.Unlock()
		if errors.Is(err, store.ErrUnavailable) {
			// Nothing reachable to leave; treat like an absent session.
			r.logger.Warn("leave: store unreachable", "session_id", sessionID, "error", err)
			return nil
		}
		return err
	}
	if s == nil {
		r.mu.Unlock()
		return nil
	}

	idx := slices.Index(s.Participants, participantID)
	if idx >= 0 {
		s.Participants = slices.Delete(s.Participants, idx, idx+1)
	}

	if len(s.Participants) == 0 {
		return r.teardownLocked(ctx, s)
	}

	s.Touch(r.now())
	if err := r.persistLocked(ctx, s); err != nil {
		r.mu.Unlock()
		return err
	}
	r.cache[s.ID] = s
	r.mu.Unlock()
	return nil
}

// Delete removes a session unconditionally, with full teardown. Deleting an
// absent session fails with NotFound.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()

	s, err := r.lookupLocked(ctx, sessionID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if s == nil {
		r.mu.Unlock()
		return core.NewNotFoundError("session " + sessionID + " not found")
	}
	return r.teardownLocked(ctx, s)
}

// Update merges updates into an existing session and persists it. Fails with
// NotFound if the session exists neither in memory nor in the store.
func (r *Registry) Update(ctx context.Context, sessionID string, updates Updates) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, core.NewNotFoundError("session " + sessionID + " not found")
	}

	if updates.Language != nil {
		s.Language = *updates.Language
	}
	if updates.Voice != nil {
		s.Voice = *updates.Voice
	}
	if updates.Settings != nil {
		s.Settings = *updates.Settings
	}
	s.Touch(r.now())

	if err := r.persistLocked(ctx, s); err != nil {
		return nil, err
	}
	r.cache[s.ID] = s
	return s.Clone(), nil
}

// Get looks the session up memory-first with a store fallback, re-caching on
// a store hit. The second return is false if neither replica has it.
func (r *Registry) Get(ctx context.Context, sessionID string) (*types.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if s == nil {
		return nil, false, nil
	}
	r.cache[s.ID] = s
	return s.Clone(), true, nil
}

// Mutate runs fn against the cached session under the registry lock and
// persists the result. It backs sibling modules (recording) that must keep
// session fields coherent with their own state transitions. Fails with
// NotFound if the session is absent.
func (r *Registry) Mutate(ctx context.Context, sessionID string, fn func(s *types.Session) error) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, core.NewNotFoundError("session " + sessionID + " not found")
	}

	if err := fn(s); err != nil {
		return nil, err
	}
	s.Touch(r.now())

	if err := r.persistLocked(ctx, s); err != nil {
		return nil, err
	}
	r.cache[s.ID] = s
	return s.Clone(), nil
}

// Touch refreshes lastActivity and persists. Used by the coordinator after a
// completed response cycle; persistence failures are absorbed because the
// live path must not fail on store trouble.
func (r *Registry) Touch(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.cache[sessionID]
	if !ok {
		return
	}
	s.Touch(r.now())
	if err := r.persistLocked(ctx, s); err != nil {
		r.logger.Warn("touch: persist failed", "session_id", sessionID, "error", err)
	}
}

// Exists reports whether the session is currently cached. The coordinator
// uses it to re-check liveness after a responder call returns; teardown
// always clears the cache, so a cache check is authoritative for discard.
func (r *Registry) Exists(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache[sessionID]
	return ok
}

// CleanupInactive tears down every cached session whose lastActivity is older
// than threshold, via the same path as participant-initiated leaves. Returns
// the number of sessions removed.
func (r *Registry) CleanupInactive(ctx context.Context, threshold time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-threshold)
	type stale struct {
		id           string
		participants []string
	}
	var expired []stale
	for id, s := range r.cache {
		if s.LastActivity.Before(cutoff) {
			expired = append(expired, stale{id: id, participants: slices.Clone(s.Participants)})
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, e := range expired {
		for _, p := range e.participants {
			if err := r.Leave(ctx, e.id, p); err != nil {
				r.logger.Warn("cleanup: leave failed", "session_id", e.id, "error", err)
			}
		}
		if r.Exists(e.id) {
			// Participant set drifted under us; force the teardown path.
			if err := r.Delete(ctx, e.id); err != nil {
				r.logger.Warn("cleanup: delete failed", "session_id", e.id, "error", err)
				continue
			}
		}
		removed++
		r.logger.Info("cleaned up inactive session", "session_id", e.id)
	}
	return removed
}

// newSessionLocked builds a session from defaults merged with opts.
func (r *Registry) newSessionLocked(id string, now time.Time, opts Options) *types.Session {
	s := &types.Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Language:     r.cfg.DefaultLanguage,
		Voice:        r.cfg.DefaultVoice,
		Participants: []string{},
	}
	if opts.Language != "" {
		s.Language = opts.Language
	}
	if opts.Voice != "" {
		s.Voice = opts.Voice
	}
	if opts.Settings != nil {
		s.Settings = *opts.Settings
	}
	return s
}

// lookupLocked resolves a session memory-first, falling back to the store.
// Callers must hold mu. The returned pointer is the cached instance when the
// cache hit; store hits return a fresh instance not yet cached.
func (r *Registry) lookupLocked(ctx context.Context, sessionID string) (*types.Session, error) {
	if s, ok := r.cache[sessionID]; ok {
		return s, nil
	}
	s, found, err := store.GetJSON[types.Session](ctx, r.store, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return s, nil
}

// persistLocked mirrors the session to the store. History is hydrated
// per-read and never persisted inside the session value.
func (r *Registry) persistLocked(ctx context.Context, s *types.Session) error {
	persisted := s.Clone()
	persisted.History = nil
	if err := store.SetJSON(ctx, r.store, sessionKey(s.ID), persisted, r.cfg.SessionTTL); err != nil {
		return core.NewUnavailableError("session store", err)
	}
	return nil
}

// teardownLocked removes the session everywhere. It takes ownership of mu and
// releases it before running teardown hooks so hooks can call back into the
// registry.
func (r *Registry) teardownLocked(ctx context.Context, s *types.Session) error {
	id := s.ID
	delete(r.cache, id)
	r.mu.Unlock()

	if err := r.store.Del(ctx, sessionKey(id)); err != nil {
		r.logger.Warn("teardown: store delete failed", "session_id", id, "error", err)
	}
	if r.history != nil {
		if err := r.history.Delete(ctx, id); err != nil {
			r.logger.Warn("teardown: history delete failed", "session_id", id, "error", err)
		}
	}

	r.teardownMu.Lock()
	hooks := slices.Clone(r.onTeardown)
	r.teardownMu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}

	r.logger.Info("session torn down", "session_id", id)
	return nil
}

func (r *Registry) hydrateHistory(ctx context.Context, sessionID string) []types.HistoryEntry {
	if r.history == nil {
		return nil
	}
	entries, err := r.history.Read(ctx, sessionID, r.cfg.HistoryLimit)
	if err != nil {
		// History is advisory; a cold join without it is still a join.
		r.logger.Warn("join: history hydration failed", "session_id", sessionID, "error", err)
		return nil
	}
	return entries
}
