package scaffold

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/factory_os/internal/app/domain/device"
)

// Manifest defaults.
const (
	DefaultName            = "factory-backend"
	DefaultFactoryLocation = "Unspecified"
	DefaultPort            = 8000
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Manifest describes the project to generate. It is read from a YAML file
// or assembled from command-line flags.
type Manifest struct {
	Name            string       `yaml:"name"`
	Module          string       `yaml:"module"`
	FactoryLocation string       `yaml:"factory_location"`
	Port            int          `yaml:"port"`
	Devices         []SeedDevice `yaml:"devices"`
}

// SeedDevice is a device row inserted by the generated project at startup.
type SeedDevice struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Status    string `yaml:"status"`
	FactoryID string `yaml:"factory_id"`
}

// MockDevice is the seed row used when a manifest lists none.
var MockDevice = SeedDevice{ID: 1, Name: "CNC-001", Status: device.StatusRunning, FactoryID: "TW_01"}

// LoadManifest reads a YAML manifest. Unknown keys are rejected.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes a YAML manifest. An empty document yields the
// defaults.
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// Device converts the seed row to the domain model.
func (s SeedDevice) Device() device.Device {
	return device.Device{ID: s.ID, Name: s.Name, Status: s.Status, FactoryID: s.FactoryID}
}

// Normalize fills defaults and validates the manifest.
func (m *Manifest) Normalize() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		m.Name = DefaultName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("invalid project name %q: use lowercase letters, digits, '.', '_' or '-'", m.Name)
	}

	m.Module = strings.TrimSpace(m.Module)
	if m.Module == "" {
		m.Module = "example.com/" + m.Name
	}
	if strings.ContainsAny(m.Module, " \t\"`\\") {
		return fmt.Errorf("invalid module path %q", m.Module)
	}

	m.FactoryLocation = strings.TrimSpace(m.FactoryLocation)
	if m.FactoryLocation == "" {
		m.FactoryLocation = DefaultFactoryLocation
	}
	if strings.ContainsAny(m.FactoryLocation, "\"\\\n") {
		return fmt.Errorf("invalid factory location %q", m.FactoryLocation)
	}

	if m.Port == 0 {
		m.Port = DefaultPort
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port %d out of range", m.Port)
	}

	if len(m.Devices) == 0 {
		m.Devices = []SeedDevice{MockDevice}
	}
	seen := make(map[int64]bool, len(m.Devices))
	for i := range m.Devices {
		d := m.Devices[i].Device()
		d.Normalize()
		if d.ID <= 0 {
			return fmt.Errorf("device %d: id must be positive", i)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("device %d: duplicate id %d", i, d.ID)
		}
		seen[d.ID] = true
		m.Devices[i] = SeedDevice{ID: d.ID, Name: d.Name, Status: d.Status, FactoryID: d.FactoryID}
	}
	return nil
}
