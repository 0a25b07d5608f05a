package location

import (
	"context"
	"sync"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

// Report is a partial device update sent by the client. Nil fields leave the
// previously reported value untouched.
type Report struct {
	PermissionGranted *bool           `json:"permission_granted,omitempty"`
	ServicesEnabled   *bool           `json:"services_enabled,omitempty"`
	Coordinate        *geo.Coordinate `json:"coordinate,omitempty" validate:"omitempty"`
}

// ClientDevice is a Device fed by reports from the connected client. Each
// query blocks until the client has reported the value or ctx ends.
type ClientDevice struct {
	mu         sync.Mutex
	permission *bool
	services   *bool
	coordinate *geo.Coordinate
	changed    chan struct{}
}

// NewClientDevice returns a device with nothing reported yet.
func NewClientDevice() *ClientDevice {
	return &ClientDevice{changed: make(chan struct{})}
}

// Report merges r into the device state and wakes every waiter.
func (d *ClientDevice) Report(r Report) {
	d.mu.Lock()
	if r.PermissionGranted != nil {
		v := *r.PermissionGranted
		d.permission = &v
	}
	if r.ServicesEnabled != nil {
		v := *r.ServicesEnabled
		d.services = &v
	}
	if r.Coordinate != nil {
		c := *r.Coordinate
		d.coordinate = &c
	}
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()
}

// ResetFix forgets the reported coordinate. Permission and services answers
// are kept; they only change when the client reports them again.
func (d *ClientDevice) ResetFix() {
	d.mu.Lock()
	d.coordinate = nil
	d.mu.Unlock()
}

func (d *ClientDevice) RequestPermission(ctx context.Context) (bool, error) {
	return waitFor(ctx, d, func(d *ClientDevice) (bool, bool) {
		if d.permission == nil {
			return false, false
		}
		return *d.permission, true
	})
}

func (d *ClientDevice) ServicesEnabled(ctx context.Context) (bool, error) {
	return waitFor(ctx, d, func(d *ClientDevice) (bool, bool) {
		if d.services == nil {
			return false, false
		}
		return *d.services, true
	})
}

func (d *ClientDevice) CurrentPosition(ctx context.Context, _ Accuracy) (geo.Coordinate, error) {
	return waitFor(ctx, d, func(d *ClientDevice) (geo.Coordinate, bool) {
		if d.coordinate == nil {
			return geo.Coordinate{}, false
		}
		return *d.coordinate, true
	})
}

// waitFor polls pick under the device lock after every report.
func waitFor[T any](ctx context.Context, d *ClientDevice, pick func(*ClientDevice) (T, bool)) (T, error) {
	for {
		d.mu.Lock()
		v, ok := pick(d)
		changed := d.changed
		d.mu.Unlock()

		if ok {
			return v, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// StaticDevice always grants access and reports a fixed coordinate.
type StaticDevice struct {
	Coordinate geo.Coordinate
}

func (s StaticDevice) RequestPermission(context.Context) (bool, error) { return true, nil }

func (s StaticDevice) ServicesEnabled(context.Context) (bool, error) { return true, nil }

func (s StaticDevice) CurrentPosition(ctx context.Context, _ Accuracy) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	return s.Coordinate, nil
}
