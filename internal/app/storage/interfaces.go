package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/factory_os/internal/app/domain/device"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// DeviceFilter narrows ListDevices. Empty fields match everything.
type DeviceFilter struct {
	FactoryID string
	Status    string
}

// Matches reports whether d passes the filter.
func (f DeviceFilter) Matches(d device.Device) bool {
	if f.FactoryID != "" && d.FactoryID != f.FactoryID {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

// DeviceStore persists devices.
type DeviceStore interface {
	GetDevice(ctx context.Context, id int64) (device.Device, error)
	// SaveDevice inserts d, or replaces the row with the same id. An id of
	// zero assigns the next free id.
	SaveDevice(ctx context.Context, d device.Device) (device.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]device.Device, error)
	Ping(ctx context.Context) error
}

// DeviceCache is an optional look-aside cache in front of a DeviceStore.
type DeviceCache interface {
	Get(ctx context.Context, id int64) (device.Device, bool, error)
	Set(ctx context.Context, d device.Device) error
	Invalidate(ctx context.Context, id int64) error
}
