package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dshills/tutormatch/internal/refresher"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// Error codes carried in the error envelope
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeConflict          = "conflict"
	CodeAlreadyMatched    = "already_matched"
	CodeNotCandidate      = "not_a_candidate"
	CodeRefreshInProgress = "refresh_in_progress"
	CodeInternal          = "internal"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      code,
			RequestID: c.GetString(requestIDKey),
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// statusFor maps domain and storage errors to an HTTP status and code.
// Internal errors keep their detail out of the response.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrInvalidTopK),
		errors.Is(err, types.ErrInvalidWeights),
		errors.Is(err, types.ErrInvalidSlot),
		errors.Is(err, types.ErrInvalidHelpLevel),
		errors.Is(err, types.ErrInvalidRole),
		errors.Is(err, types.ErrInvalidField),
		errors.Is(err, storage.ErrInvalidRow):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, types.ErrNotStudent), errors.Is(err, types.ErrNotTutor):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, types.ErrTutorNotInCandidates):
		return http.StatusNotFound, CodeNotCandidate
	case errors.Is(err, types.ErrStudentNotFound),
		errors.Is(err, types.ErrTutorNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, refresher.ErrRefreshInProgress):
		return http.StatusConflict, CodeRefreshInProgress
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

var errInternal = errors.New("internal server error")

// respondErr writes err using the status mapping
func (h *Handler) respondErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			"request_id", c.GetString(requestIDKey),
			"path", c.FullPath(),
			"error", err)
		RespondError(c, status, code, errInternal)
		return
	}
	RespondError(c, status, code, err)
}
