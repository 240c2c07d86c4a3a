package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/core/types"
	"github.com/voxroom/voxroom/pkg/gateway/apierror"
	"github.com/voxroom/voxroom/pkg/history"
	"github.com/voxroom/voxroom/pkg/recording"
	"github.com/voxroom/voxroom/pkg/session"
	"github.com/voxroom/voxroom/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSessionsServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	st := store.NewMemoryStore()
	ledger := history.NewLedger(st, 0, testLogger())
	reg := session.NewRegistry(session.Config{}, st, ledger, testLogger())
	rec := recording.NewRecorder(reg, ledger, st, testLogger())
	reg.OnTeardown(rec.Discard)

	mux := http.NewServeMux()
	h := &SessionsHandler{Registry: reg, Recorder: rec, Logger: testLogger()}
	h.Register(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, reg
}

func doJSON(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) types.Session {
	t.Helper()
	defer resp.Body.Close()
	var s types.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return s
}

func decodeErrorEnvelope(t *testing.T, resp *http.Response) *core.Error {
	t.Helper()
	defer resp.Body.Close()
	var env apierror.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error == nil {
		t.Fatalf("error envelope has no error")
	}
	return env.Error
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", `{"language":"fr","voice":"nova"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	s := decodeSession(t, resp)
	if s.ID == "" || s.Language != "fr" || s.Voice != "nova" {
		t.Fatalf("session = %+v, want created with overrides", s)
	}
}

func TestJoinLeaveLifecycle(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/join", `{"participant_id":"alice"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d, want 200", resp.StatusCode)
	}
	s := decodeSession(t, resp)
	if len(s.Participants) != 1 || s.Participants[0] != "alice" {
		t.Fatalf("Participants = %v, want [alice]", s.Participants)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/leave", `{"participant_id":"alice"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("leave status = %d, want 204", resp.StatusCode)
	}

	// Last leave tore the session down.
	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/room-1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after teardown status = %d, want 404", resp.StatusCode)
	}
	if e := decodeErrorEnvelope(t, resp); e.Type != core.ErrNotFound {
		t.Fatalf("error type = %q, want %q", e.Type, core.ErrNotFound)
	}
}

func TestJoinWithoutParticipantID(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/join", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeErrorEnvelope(t, resp); e.Type != core.ErrInvalidArgument {
		t.Fatalf("error type = %q, want %q", e.Type, core.ErrInvalidArgument)
	}
}

func TestUpdateSession(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/join", `{"participant_id":"alice"}`).Body.Close()

	resp := doJSON(t, http.MethodPatch, ts.URL+"/v1/sessions/room-1", `{"language":"de","settings":{"subtitles":true}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	s := decodeSession(t, resp)
	if s.Language != "de" || !s.Settings.Subtitles {
		t.Fatalf("session = %+v, want patched fields", s)
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	resp := doJSON(t, http.MethodPatch, ts.URL+"/v1/sessions/ghost", `{"language":"de"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/join", `{"participant_id":"alice"}`).Body.Close()

	resp := doJSON(t, http.MethodDelete, ts.URL+"/v1/sessions/room-1", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/v1/sessions/room-1", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestRecordingLifecycleOverREST(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/join", `{"participant_id":"alice"}`).Body.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/recording/start", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}

	// Double start conflicts.
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/recording/start", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", resp.StatusCode)
	}
	if e := decodeErrorEnvelope(t, resp); e.Type != core.ErrAlreadyRecording {
		t.Fatalf("error type = %q, want %q", e.Type, core.ErrAlreadyRecording)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/recording/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	var rec types.Recording
	func() {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			t.Fatalf("decode recording: %v", err)
		}
	}()
	if rec.ID == "" || rec.SessionID != "room-1" {
		t.Fatalf("recording = %+v, want persisted artifact", rec)
	}

	// The artifact is retrievable by id.
	resp = doJSON(t, http.MethodGet, ts.URL+"/v1/recordings/"+rec.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get recording status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Stop again without start conflicts.
	resp = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/room-1/recording/stop", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second stop status = %d, want 409", resp.StatusCode)
	}
	if e := decodeErrorEnvelope(t, resp); e.Type != core.ErrNotRecording {
		t.Fatalf("error type = %q, want %q", e.Type, core.ErrNotRecording)
	}
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	t.Parallel()
	ts, _ := newSessionsServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", `{"language":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}
