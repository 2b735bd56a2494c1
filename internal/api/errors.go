package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Components wrap these with fmt.Errorf("...: %w", ErrX) and
// WriteError maps them onto HTTP statuses.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrForbidden           = errors.New("forbidden")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnreadableImage     = errors.New("unreadable image")
	ErrTimeout             = errors.New("timeout")
)

// Invalid returns an ErrInvalidRequest carrying msg.
func Invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidRequest)
}

// Status returns the HTTP status for err. Timeouts map to 502 unless the
// caller is the relay, which uses GatewayTimeout directly.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnreadableImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error envelope with the status from Status.
func WriteError(w http.ResponseWriter, err error) {
	status := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	WriteJSON(w, status, ErrorResponse(9000+status, msg))
}

// GatewayTimeout writes a 504 error response.
func GatewayTimeout(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusGatewayTimeout, ErrorResponse(9504, msg))
}

// InternalError writes a 500 error response.
func InternalError(w http.ResponseWriter) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse(9500, "internal server error"))
}
