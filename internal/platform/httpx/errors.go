package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by handlers.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTooManyRequests = errors.New("too many requests")
)

// RespondError maps err onto a problem response. Unknown errors hide their message.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrTooManyRequests):
		Problem(w, http.StatusTooManyRequests, "Too Many Requests", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
