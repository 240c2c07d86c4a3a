package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/voxroom/voxroom/pkg/core"
	"github.com/voxroom/voxroom/pkg/store"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps an orchestration error to its canonical form and HTTP status.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFromType(coreErr.Type)
	}

	// Raw store errors that escaped without a typed wrapper.
	if errors.Is(err, store.ErrUnavailable) {
		return &core.Error{
			Type:      core.ErrUnavailable,
			Message:   "durable store unavailable",
			RequestID: requestID,
		}, http.StatusServiceUnavailable
	}

	// Unknown errors: treat as internal (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidArgument:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrAlreadyRecording, core.ErrNotRecording:
		return http.StatusConflict
	case core.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
