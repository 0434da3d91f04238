package common

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotParticipated    = errors.New("player has not participated in this riddle")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadyProcessed   = errors.New("already processed")
	ErrNoRetriesAvailable = errors.New("no retries available to submit a new guess")
	ErrRevealMismatch     = errors.New("revealed guess does not match committed hash")
)

// HTTPError maps a domain error onto an echo HTTP error. Unknown errors
// become 500s without leaking their message.
func HTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotParticipated):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ErrAlreadyProcessed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoRetriesAvailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrRevealMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
