package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/gustavodarosa/KidGo/internal/location"
	"github.com/gustavodarosa/KidGo/internal/places"
	"github.com/gustavodarosa/KidGo/internal/routing"
	"github.com/gustavodarosa/KidGo/pkg/common"
	"github.com/gustavodarosa/KidGo/pkg/eventloop"
)

// ErrorInfo describes a pipeline failure to clients.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorKind struct {
	err       error
	code      string
	retryable bool
}

// Ordered from most to least specific.
var errorKinds = []errorKind{
	{location.ErrPermissionDenied, "permission_denied", false},
	{location.ErrServicesDisabled, "services_disabled", false},
	{location.ErrLocationTimeout, "location_timeout", true},
	{places.ErrSearchConfig, "search_config", false},
	{places.ErrSearchTransient, "search_unavailable", true},
	{places.ErrDetailsConfig, "details_config", false},
	{places.ErrDetailsTransient, "details_unavailable", true},
	{places.ErrPlaceNotFound, "place_not_found", false},
	{routing.ErrNoRoute, "no_route", false},
	{routing.ErrRouteTransient, "route_unavailable", true},
}

// describe classifies a pipeline error for clients.
func describe(err error) ErrorInfo {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return ErrorInfo{Code: k.code, Message: err.Error(), Retryable: k.retryable}
		}
	}
	return ErrorInfo{Code: "internal", Message: err.Error()}
}

func describePtr(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := describe(err)
	return &info
}

// toAppError maps session errors to API errors.
func toAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionNotFound):
		return common.NewNotFoundError("session not found", err).WithCode("session_not_found")
	case errors.Is(err, ErrSessionClosed), errors.Is(err, eventloop.ErrClosed):
		return common.NewAppError(http.StatusGone, "session closed", err).WithCode("session_closed")
	case errors.Is(err, ErrNotConfirmable):
		return common.NewConflictError("session has no ready quote", err).WithCode("not_confirmable")
	case errors.Is(err, ErrNoChildren), errors.Is(err, ErrCarSeatUnconfirmed):
		return common.NewValidationError(err.Error())
	case errors.Is(err, ErrUnknownPlace):
		return common.NewNotFoundError("place is not a current suggestion", err).WithCode("unknown_place")
	case errors.Is(err, ErrRetryRefused):
		return common.NewConflictError("nothing to retry", err).WithCode("retry_refused")
	case errors.Is(err, ErrNoClientDevice):
		return common.NewBadRequestError("session location is not client reported", err).WithCode("no_client_device")
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewTimeoutError("session did not respond in time", err)
	}
	return common.NewInternalError("session operation failed", err)
}
