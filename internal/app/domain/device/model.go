package device

import (
	"fmt"
	"strings"
)

// Status values a device may report.
const (
	StatusOffline     = "offline"
	StatusOnline      = "online"
	StatusRunning     = "running"
	StatusIdle        = "idle"
	StatusMaintenance = "maintenance"
	StatusError       = "error"
)

// DefaultFirmware is reported in device metadata until devices report their
// own firmware.
const DefaultFirmware = "v1.2.3"

var validStatuses = map[string]bool{
	StatusOffline:     true,
	StatusOnline:      true,
	StatusRunning:     true,
	StatusIdle:        true,
	StatusMaintenance: true,
	StatusError:       true,
}

// Device is a machine on a factory floor.
type Device struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Status    string `json:"status" db:"status"`
	FactoryID string `json:"factory_id" db:"factory_id"`
}

// Metadata is the descriptive block returned with a device lookup.
type Metadata struct {
	Firmware string `json:"firmware"`
}

// Normalize trims fields and applies the default status.
func (d *Device) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.FactoryID = strings.TrimSpace(d.FactoryID)
	d.Status = strings.ToLower(strings.TrimSpace(d.Status))
	if d.Status == "" {
		d.Status = StatusOffline
	}
}

// Validate normalizes d and checks required fields.
func (d *Device) Validate() error {
	d.Normalize()
	if d.ID < 0 {
		return fmt.Errorf("id must not be negative")
	}
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.FactoryID == "" {
		return fmt.Errorf("factory_id is required")
	}
	if !validStatuses[d.Status] {
		return fmt.Errorf("unknown status %q", d.Status)
	}
	return nil
}

// IsValidStatus reports whether s is a known status.
func IsValidStatus(s string) bool {
	return validStatuses[strings.ToLower(strings.TrimSpace(s))]
}
