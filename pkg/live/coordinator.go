// Package live coordinates the at-most-one-in-flight AI response cycle per
// session: input events, barge-in interruption, and result broadcast.
//
// Audio arrives as a rapid stream of small chunks; the responding guard turns
// that stream into a logical request/response cycle. Input that arrives while
// a cycle is in flight is dropped, not queued — clients are expected to
// debounce, and queueing would break the per-session completion ordering.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/history"
	"github.com/voxroom/voxroom/pkg/session"
)

// Result is what a responder produces for one cycle.
type Result struct {
	Text     string
	AudioRef string
}

// Responder is the external speech/LLM capability. Implementations must
// honor ctx cancellation; the coordinator assumes no side effects beyond the
// returned value.
type Responder interface {
	GetResponse(ctx context.Context, userText string, sctx types.SessionContext) (Result, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, userText string, sctx types.SessionContext) (Result, error)

func (f ResponderFunc) GetResponse(ctx context.Context, userText string, sctx types.SessionContext) (Result, error) {
	return f(ctx, userText, sctx)
}

// Config bounds a coordinator.
type Config struct {
	// HistoryWindow is how many recent entries each cycle hands the responder.
	HistoryWindow int
	// ResponseTimeout caps a single responder call. Zero means no cap.
	ResponseTimeout time.Duration
	// SubscriberBuffer is the per-subscriber event channel capacity.
	SubscriberBuffer int
}

// liveState is the volatile per-session flag structure. Never persisted;
// created on Open, destroyed on Close or session teardown.
type liveState struct {
	systemInstruction string
	responding        bool
	// gen increments on every interrupt and open, invalidating any cycle
	// started under an older value.
	gen    uint64
	cancel context.CancelFunc
}

// Coordinator runs the per-session response state machine and fans completed
// results out to subscribers.
type Coordinator struct {
	cfg       Config
	registry  *session.Registry
	ledger    *history.Ledger
	responder Responder
	logger    *slog.Logger

	mu     sync.Mutex
	states map[string]*liveState

	subMu sync.Mutex
	subs  map[string]map[chan types.ResponseEvent]struct{}

	now func() time.Time
}

func NewCoordinator(cfg Config, reg *session.Registry, ledger *history.Ledger, responder Responder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 16
	}
	return &Coordinator{
		cfg:       cfg,
		registry:  reg,
		ledger:    ledger,
		responder: responder,
		logger:    logger,
		states:    make(map[string]*liveState),
		subs:      make(map[string]map[chan types.ResponseEvent]struct{}),
		now:       time.Now,
	}
}

// Open creates the session's live state in Idle. Reopening replaces the old
// state, so any cycle still outstanding under it will be discarded.
func (c *Coordinator) Open(sessionID, systemInstruction string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.states[sessionID]; ok && old.cancel != nil {
		old.cancel()
	}
	c.states[sessionID] = &liveState{systemInstruction: systemInstruction}
}

// EnsureOpen creates the live state if it does not already exist. Later
// participants joining an open session keep the first instruction.
func (c *Coordinator) EnsureOpen(sessionID, systemInstruction string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.states[sessionID]; ok {
		return
	}
	c.states[sessionID] = &liveState{systemInstruction: systemInstruction}
}

// Close removes the live state unconditionally. Late results for cycles
// started before Close are discarded.
func (c *Coordinator) Close(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.states[sessionID]; ok {
		if st.cancel != nil {
			st.cancel()
		}
		delete(c.states, sessionID)
	}
}

// Responding reports whether a cycle is currently in flight.
func (c *Coordinator) Responding(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[sessionID]
	return ok && st.responding
}

// Interrupt force-transitions Responding -> Idle. The outstanding responder
// call is cancelled as a courtesy, but the correctness guarantee is the
// generation bump: whatever that call eventually returns is discarded, so a
// user-visible response always corresponds to the most recent non-interrupted
// request.
func (c *Coordinator) Interrupt(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[sessionID]
	if !ok {
		return
	}
	st.gen++
	st.responding = false
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
}

// HandleInput starts a response cycle for one user input event. Returns false
// when the event is dropped: no live channel is open, or a cycle is already
// in flight (deliberate backpressure, not an error). The cycle itself runs on
// its own goroutine so the caller's event loop stays free to deliver an
// interrupt.
func (c *Coordinator) HandleInput(sessionID, userText string) bool {
	c.mu.Lock()
	st, ok := c.states[sessionID]
	if !ok || st.responding {
		c.mu.Unlock()
		return false
	}
	st.responding = true
	gen := st.gen

	base := context.Background()
	var cctx context.Context
	var cancel context.CancelFunc
	if c.cfg.ResponseTimeout > 0 {
		cctx, cancel = context.WithTimeout(base, c.cfg.ResponseTimeout)
	} else {
		cctx, cancel = context.WithCancel(base)
	}
	st.cancel = cancel
	instruction := st.systemInstruction
	c.mu.Unlock()

	go c.runCycle(cctx, cancel, sessionID, st, gen, instruction, userText)
	return true
}

func (c *Coordinator) runCycle(ctx context.Context, cancel context.CancelFunc, sessionID string, st *liveState, gen uint64, instruction, userText string) {
	defer cancel()
	startedAt := c.now()

	sctx := types.SessionContext{
		SessionID:         sessionID,
		SystemInstruction: instruction,
	}
	if s, found, err := c.registry.Get(ctx, sessionID); err == nil && found {
		sctx.Language = s.Language
		sctx.Voice = s.Voice
	}
	if c.ledger != nil {
		if recent, err := c.ledger.Read(ctx, sessionID, c.cfg.HistoryWindow); err == nil {
			sctx.History = recent
		}
	}

	result, err := c.responder.GetResponse(ctx, userText, sctx)

	if !c.finishCycle(sessionID, st, gen) {
		// Interrupted or closed mid-call; the result, if any, is stale.
		c.logger.Debug("discarding late response", "session_id", sessionID)
		return
	}
	if err != nil {
		// A failed cycle is equivalent to a dropped chunk: back to Idle, no
		// emission, and the next input proceeds normally.
		c.logger.Warn("response cycle failed", "session_id", sessionID, "error", err)
		return
	}

	bg := context.Background()
	if c.ledger != nil {
		c.ledger.Append(bg, sessionID, types.HistoryEntry{
			UserText: userText,
			AIText:   result.Text,
			Language: sctx.Language,
			Voice:    sctx.Voice,
			AudioRef: result.AudioRef,
			Duration: c.now().Sub(startedAt),
		})
	}
	c.registry.Touch(bg, sessionID)

	c.publish(types.ResponseEvent{
		SessionID: sessionID,
		Text:      result.Text,
		AudioRef:  result.AudioRef,
		Language:  sctx.Language,
		Voice:     sctx.Voice,
	})
}

// finishCycle transitions back to Idle and reports whether the cycle is still
// current: the same live state is registered, its generation is unchanged,
// and the session itself still exists.
func (c *Coordinator) finishCycle(sessionID string, st *liveState, gen uint64) bool {
	c.mu.Lock()
	cur, ok := c.states[sessionID]
	current := ok && cur == st && st.gen == gen
	if current {
		st.responding = false
		st.cancel = nil
	}
	c.mu.Unlock()

	return current && c.registry.Exists(sessionID)
}

// Subscribe returns a channel of response events for the session plus an
// unsubscribe func. Events for subscribers whose buffer is full are dropped.
func (c *Coordinator) Subscribe(sessionID string) (<-chan types.ResponseEvent, func()) {
	ch := make(chan types.ResponseEvent, c.cfg.SubscriberBuffer)

	c.subMu.Lock()
	set, ok := c.subs[sessionID]
	if !ok {
		set = make(map[chan types.ResponseEvent]struct{})
		c.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.subMu.Lock()
			if set, ok := c.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(c.subs, sessionID)
				}
			}
			c.subMu.Unlock()
		})
	}
	return ch, unsubscribe
}

func (c *Coordinator) publish(ev types.ResponseEvent) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for ch := range c.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("subscriber buffer full, event dropped", "session_id", ev.SessionID)
		}
	}
}
