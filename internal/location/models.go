package location

import (
	"context"
	"errors"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

var (
	// ErrPermissionDenied means the user refused location access. Retrying is
	// pointless until the permission is changed in the device settings.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrServicesDisabled means location services are switched off on the device.
	ErrServicesDisabled = errors.New("location services disabled")
	// ErrLocationTimeout means no position arrived within the acquisition window.
	ErrLocationTimeout = errors.New("location request timed out")
)

// Status is the acquisition state of the device location.
type Status string

const (
	StatusUnresolved      Status = "unresolved"
	StatusRequesting      Status = "requesting"
	StatusGranted         Status = "granted"
	StatusDenied          Status = "denied"
	StatusServiceDisabled Status = "service_disabled"
	StatusTimedOut        Status = "timed_out"
)

// Terminal reports whether the status needs an external settings change
// before another acquisition can succeed.
func (s Status) Terminal() bool {
	return s == StatusDenied || s == StatusServiceDisabled
}

// State is the location snapshot owned by a pipeline session.
type State struct {
	Status       Status          `json:"status"`
	Coordinate   *geo.Coordinate `json:"coordinate,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Err returns the sentinel matching a failed state, or nil.
func (s State) Err() error {
	switch s.Status {
	case StatusDenied:
		return ErrPermissionDenied
	case StatusServiceDisabled:
		return ErrServicesDisabled
	case StatusTimedOut:
		return ErrLocationTimeout
	default:
		return nil
	}
}

// Accuracy is the requested fix quality.
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyHigh
)

func (a Accuracy) String() string {
	if a == AccuracyHigh {
		return "high"
	}
	return "balanced"
}

// Device is the platform location service.
type Device interface {
	RequestPermission(ctx context.Context) (bool, error)
	ServicesEnabled(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context, accuracy Accuracy) (geo.Coordinate, error)
}

// FixResetter is implemented by devices that cache the last position. The
// provider calls ResetFix when an acquisition starts so that it waits for a
// fresh position instead of returning the cached one.
type FixResetter interface {
	ResetFix()
}
