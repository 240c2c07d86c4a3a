// Package protocol defines the live websocket frames exchanged on /v1/live.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voxroom/voxroom/pkg/core/types"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientHello opens a live channel: it joins the participant to the session
// (creating it implicitly when absent) and installs the system instruction.
type ClientHello struct {
	Type              string          `json:"type"`
	ProtocolVersion   string          `json:"protocol_version"`
	SessionID         string          `json:"session_id,omitempty"`
	ParticipantID     string          `json:"participant_id"`
	Language          string          `json:"language,omitempty"`
	Voice             string          `json:"voice,omitempty"`
	Settings          *types.Settings `json:"settings,omitempty"`
	SystemInstruction string          `json:"system_instruction,omitempty"`
}

// ClientInput carries one user text event; it triggers a response cycle.
type ClientInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClientAudio carries one raw audio chunk. The payload feeds any active
// recording; a non-empty transcript additionally triggers a response cycle.
type ClientAudio struct {
	Type       string `json:"type"`
	DataB64    string `json:"data_b64,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ClientInterrupt is the barge-in signal.
type ClientInterrupt struct {
	Type string `json:"type"`
}

type ClientRecordingStart struct {
	Type string `json:"type"`
}

type ClientRecordingStop struct {
	Type string `json:"type"`
}

type ClientBye struct {
	Type string `json:"type"`
}

// ServerHelloAck confirms the join and echoes the effective session state.
type ServerHelloAck struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	SessionID       string               `json:"session_id"`
	Language        string               `json:"language"`
	Voice           string               `json:"voice"`
	Settings        types.Settings       `json:"settings"`
	Participants    []string             `json:"participants"`
	History         []types.HistoryEntry `json:"history,omitempty"`
}

// ServerResponse is one completed response cycle, fanned out to every
// participant of the session.
type ServerResponse struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	AudioRef  string `json:"audio_ref,omitempty"`
	Language  string `json:"language"`
	Voice     string `json:"voice"`
}

type ServerRecordingStarted struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

type ServerRecordingStopped struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Recording *types.Recording `json:"recording"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerError struct {
	Type    string `json:"type"`
	Scope   string `json:"scope,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

// DecodeClientMessage parses one client frame into its concrete type.
func DecodeClientMessage(raw []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, badRequest("invalid JSON frame", "")
	}

	switch probe.Type {
	case "hello":
		var msg ClientHello
		if err := strictUnmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ParticipantID) == "" {
			return nil, badRequest("participant_id is required", "participant_id")
		}
		return msg, nil
	case "input":
		var msg ClientInput
		if err := strictUnmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text is required", "text")
		}
		return msg, nil
	case "audio":
		var msg ClientAudio
		if err := strictUnmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "interrupt":
		return ClientInterrupt{Type: probe.Type}, nil
	case "recording_start":
		return ClientRecordingStart{Type: probe.Type}, nil
	case "recording_stop":
		return ClientRecordingStop{Type: probe.Type}, nil
	case "bye":
		return ClientBye{Type: probe.Type}, nil
	case "":
		return nil, badRequest("type is required", "type")
	default:
		return nil, badRequest(fmt.Sprintf("unknown frame type %q", probe.Type), "type")
	}
}

func strictUnmarshal(raw []byte, dest any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return badRequest("malformed frame: "+err.Error(), "")
	}
	return nil
}
