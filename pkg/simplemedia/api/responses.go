package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Error codes returned in the error envelope
const (
	CodeBadRequest          = "bad_request"
	CodeValidationFailed    = "validation_failed"
	CodeProcessingFailed    = "processing_failed"
	CodeNotFound            = "not_found"
	CodePayloadTooLarge     = "payload_too_large"
	CodeIdempotencyConflict = "idempotency_conflict"
	CodeUnauthorized        = "unauthorized"
	CodeInternal            = "internal_error"
)

// ErrorBody is the body of every error response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps ErrorBody as {"error": {...}}
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body ErrorBody) {
	writeJSON(w, r, status, ErrorEnvelope{Error: body})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeErrorBody(w, r, http.StatusBadRequest, ErrorBody{Code: CodeBadRequest, Message: message})
}

// errorResponse maps a service error to its HTTP status and envelope body.
func errorResponse(err error) (int, ErrorBody) {
	var mediaErr *simplemedia.Error
	if !errors.As(err, &mediaErr) {
		return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "an internal server error occurred"}
	}

	switch mediaErr.Kind {
	case simplemedia.KindValidationFailed:
		return http.StatusUnprocessableEntity, ErrorBody{
			Code:    CodeValidationFailed,
			Message: "upload rejected",
			Details: map[string]any{"violations": mediaErr.Violations},
		}
	case simplemedia.KindProcessingFailed:
		return http.StatusUnprocessableEntity, ErrorBody{
			Code:    CodeProcessingFailed,
			Message: "upload could not be processed",
			Details: map[string]any{"retryable": mediaErr.Retryable, "operation": mediaErr.Op},
		}
	case simplemedia.KindNotFound:
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: mediaErr.Entity + " not found"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "an internal server error occurred"}
	}
}

// writeError logs err and writes the mapped envelope. Client errors log at warn.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status, body := errorResponse(err)

	ctx := log.WithFields(r.Context(), map[string]any{
		"status":     status,
		"error_code": body.Code,
	})
	if status >= http.StatusInternalServerError || body.Code == CodeProcessingFailed {
		log.Error(ctx, "request.error", err)
	} else {
		log.Warn(log.WithField(ctx, "error", err.Error()), "request.rejected")
	}

	writeErrorBody(w, r, status, body)
}
