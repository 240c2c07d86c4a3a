package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/gateway/config"
	"github.com/voxroom/voxroom/pkg/gateway/conns"
	"github.com/voxroom/voxroom/pkg/gateway/lifecycle"
	"github.com/voxroom/voxroom/pkg/gateway/protocol"
	"github.com/voxroom/voxroom/pkg/live"
	"github.com/voxroom/voxroom/pkg/recording"
	"github.com/voxroom/voxroom/pkg/session"
)

// LiveHandler handles /v1/live websocket connections: one connection is one
// participant in one session. Frames on the connection are processed
// one-at-a-time, which together with the coordinator's responding guard
// serializes all mutations to a session originating from this participant.
type LiveHandler struct {
	Config      config.Config
	Registry    *session.Registry
	Coordinator *live.Coordinator
	Recorder    *recording.Recorder
	Logger      *slog.Logger
	Lifecycle   *lifecycle.Lifecycle
	LiveConns   *conns.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	hello, ok := h.readHello(conn)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := strings.TrimSpace(hello.SessionID)
	if sessionID == "" {
		sessionID = "s_" + randHex(8)
	}

	s, err := h.Registry.Join(ctx, sessionID, hello.ParticipantID, session.Options{
		Language: hello.Language,
		Voice:    hello.Voice,
		Settings: hello.Settings,
	})
	if err != nil {
		h.writeWSError(conn, "session", "join_failed", err.Error(), true)
		return
	}
	defer func() {
		if err := h.Registry.Leave(context.Background(), sessionID, hello.ParticipantID); err != nil {
			h.Logger.Warn("leave on disconnect failed", "session_id", sessionID, "error", err)
		}
	}()

	h.Coordinator.EnsureOpen(sessionID, hello.SystemInstruction)

	events, unsubscribe := h.Coordinator.Subscribe(sessionID)
	defer unsubscribe()

	outbound := make(chan any, 32)
	outbound <- protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       s.ID,
		Language:        s.Language,
		Voice:           s.Voice,
		Settings:        s.Settings,
		Participants:    s.Participants,
		History:         s.History,
	}

	connID := "c_" + randHex(8)
	unregister := func() {}
	if h.LiveConns != nil {
		unregister = h.LiveConns.Register(connID, conns.Handle{
			Cancel: cancel,
			Warn: func(code, message string) error {
				select {
				case outbound <- protocol.ServerWarning{Type: "warning", Code: code, Message: message}:
					return nil
				default:
					return fmt.Errorf("outbound queue full")
				}
			},
		})
	}
	defer unregister()

	if h.Config.WSMaxSessionDuration > 0 {
		timer := time.AfterFunc(h.Config.WSMaxSessionDuration, cancel)
		defer timer.Stop()
	}

	go h.writePump(ctx, conn, outbound, cancel)
	go h.eventPump(ctx, events, outbound)

	h.readLoop(ctx, conn, sessionID, outbound)
}

func (h LiveHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, bool) {
	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "failed to read hello", true)
		return protocol.ClientHello{}, false
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return protocol.ClientHello{}, false
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "invalid hello frame", true)
		return protocol.ClientHello{}, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return protocol.ClientHello{}, false
	}
	if strings.TrimSpace(hello.ProtocolVersion) != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "session", "unsupported_version", "unsupported protocol_version", true)
		return protocol.ClientHello{}, false
	}

	_ = conn.SetReadDeadline(time.Time{})
	return hello, true
}

func (h LiveHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, outbound chan<- any) {
	for {
		if ctx.Err() != nil {
			return
		}
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		decoded, err := protocol.DecodeClientMessage(frame)
		if err != nil {
			h.enqueue(outbound, protocol.ServerError{Type: "error", Scope: "frame", Code: "bad_request", Message: err.Error()})
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientInput:
			// Dropped-on-busy is invisible by design; the caller sees no
			// reply and may speak again.
			h.Coordinator.HandleInput(sessionID, msg.Text)
		case protocol.ClientAudio:
			if msg.DataB64 != "" {
				if payload, err := base64.StdEncoding.DecodeString(msg.DataB64); err == nil {
					h.Recorder.AppendRawData(sessionID, payload)
				}
			}
			if strings.TrimSpace(msg.Transcript) != "" {
				h.Coordinator.HandleInput(sessionID, msg.Transcript)
			}
		case protocol.ClientInterrupt:
			h.Coordinator.Interrupt(sessionID)
		case protocol.ClientRecordingStart:
			if err := h.Recorder.Start(ctx, sessionID); err != nil {
				h.enqueue(outbound, wsErrorFrom("recording", err))
				continue
			}
			h.enqueue(outbound, protocol.ServerRecordingStarted{Type: "recording_started", SessionID: sessionID, StartedAt: time.Now()})
		case protocol.ClientRecordingStop:
			rec, err := h.Recorder.Stop(ctx, sessionID)
			if err != nil {
				h.enqueue(outbound, wsErrorFrom("recording", err))
				continue
			}
			h.enqueue(outbound, protocol.ServerRecordingStopped{Type: "recording_stopped", SessionID: sessionID, Recording: rec})
		case protocol.ClientBye:
			return
		}
	}
}

func (h LiveHandler) writePump(ctx context.Context, conn *websocket.Conn, outbound <-chan any, cancel context.CancelFunc) {
	defer cancel()
	defer conn.Close()

	pingInterval := h.Config.LiveWSPingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := h.Config.LiveWSWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h LiveHandler) eventPump(ctx context.Context, events <-chan types.ResponseEvent, outbound chan<- any) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			h.enqueue(outbound, protocol.ServerResponse{
				Type:      "response",
				SessionID: ev.SessionID,
				Text:      ev.Text,
				AudioRef:  ev.AudioRef,
				Language:  ev.Language,
				Voice:     ev.Voice,
			})
		}
	}
}

func (h LiveHandler) enqueue(outbound chan<- any, frame any) {
	select {
	case outbound <- frame:
	default:
		h.Logger.Warn("outbound queue full, frame dropped")
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, scope, code, message string, close bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: scope, Code: code, Message: message, Close: close})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func wsErrorFrom(scope string, err error) protocol.ServerError {
	return protocol.ServerError{Type: "error", Scope: scope, Code: "request_failed", Message: err.Error()}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
