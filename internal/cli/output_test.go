package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrinterPlainWriter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Success("Created: %s", "main.go")
	p.Warning("skipped")
	p.Error("failed")
	p.Info("note")

	assert.Equal(t, "✓ Created: main.go\n⚠ skipped\n✗ failed\nℹ note\n", buf.String())
}

func TestSpinnerOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	s := p.NewSpinner("go mod tidy")
	s.Start()
	s.Start()
	s.Success("dependencies installed")
	s.Stop()

	assert.Equal(t, "go mod tidy ...\n✓ dependencies installed\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "< 1s", FormatDuration(300*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}
