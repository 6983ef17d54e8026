package scaffold

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
name: plant-c
module: github.com/acme/plant-c
factory_location: TW_02
devices:
  - id: 3
    name: Lathe-3
    status: idle
    factory_id: TW_02
`))
	require.NoError(t, err)
	require.NoError(t, m.Normalize())

	assert.Equal(t, "github.com/acme/plant-c", m.Module)
	assert.Equal(t, DefaultPort, m.Port)
	assert.Equal(t, []SeedDevice{{ID: 3, Name: "Lathe-3", Status: "idle", FactoryID: "TW_02"}}, m.Devices)
}

func TestParseManifestEmptyUsesDefaults(t *testing.T) {
	m, err := ParseManifest(nil)
	require.NoError(t, err)
	require.NoError(t, m.Normalize())

	assert.Equal(t, DefaultName, m.Name)
	assert.Equal(t, "example.com/"+DefaultName, m.Module)
	assert.Equal(t, []SeedDevice{MockDevice}, m.Devices)
}

func TestParseManifestRejectsUnknownKeys(t *testing.T) {
	_, err := ParseManifest([]byte("name: x\nlanguage: python\n"))
	assert.Error(t, err)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
	}{
		{"name", Manifest{Name: "Has Space"}},
		{"module", Manifest{Module: "bad module"}},
		{"location", Manifest{FactoryLocation: `a"b`}},
		{"port", Manifest{Port: 70000}},
		{"device id", Manifest{Devices: []SeedDevice{{ID: 0, Name: "x", FactoryID: "f"}}}},
		{"device status", Manifest{Devices: []SeedDevice{{ID: 1, Name: "x", Status: "broken", FactoryID: "f"}}}},
		{"device factory", Manifest{Devices: []SeedDevice{{ID: 1, Name: "x"}}}},
		{"duplicate", Manifest{Devices: []SeedDevice{
			{ID: 1, Name: "x", FactoryID: "f"},
			{ID: 1, Name: "y", FactoryID: "f"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			assert.Error(t, m.Normalize())
		})
	}
}
