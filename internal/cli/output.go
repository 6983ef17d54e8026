// Package cli provides terminal output helpers for factoryctl.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines, colored when the writer is a terminal.
type Printer struct {
	mu       sync.Mutex
	writer   io.Writer
	colorize bool
}

// NewPrinter creates a printer for w. Color is enabled only for terminals.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{writer: w, colorize: isTerminal(w)}
}

// DisableColor disables colored output
func (p *Printer) DisableColor() *Printer {
	p.colorize = false
	return p
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.writer
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	p.line("✓", ColorGreen, format, args...)
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	p.line("✗", ColorRed, format, args...)
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	p.line("⚠", ColorYellow, format, args...)
}

// Info prints an info message
func (p *Printer) Info(format string, args ...any) {
	p.line("ℹ", ColorBlue, format, args...)
}

// Heading prints a bold line.
func (p *Printer) Heading(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text := fmt.Sprintf(format, args...)
	if p.colorize {
		text = ColorBold + text + ColorReset
	}
	fmt.Fprintln(p.writer, text)
}

// Plain prints an unadorned line.
func (p *Printer) Plain(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, format+"\n", args...)
}

func (p *Printer) line(symbol, color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.colorize {
		symbol = color + symbol + ColorReset
	}
	fmt.Fprintf(p.writer, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Spinner represents a loading spinner. On non-terminal writers it prints
// the prefix once and stays silent until Success or Error.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	printer *Printer
	mu      sync.Mutex
	active  bool
	done    chan struct{}
	stopped chan struct{}
}

// NewSpinner creates a new spinner bound to the printer.
func (p *Printer) NewSpinner(prefix string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
		printer: p,
	}
}

// Start starts the spinner
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	if !s.printer.colorize {
		s.printer.Plain("%s ...", s.prefix)
		close(s.stopped)
		return
	}

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.render()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.done)
	s.mu.Unlock()

	<-s.stopped
	if s.printer.colorize {
		s.printer.mu.Lock()
		fmt.Fprint(s.printer.writer, "\r"+strings.Repeat(" ", 80)+"\r")
		s.printer.mu.Unlock()
	}
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(format string, args ...any) {
	s.Stop()
	s.printer.Success(format, args...)
}

// Error stops the spinner and shows an error message
func (s *Spinner) Error(format string, args ...any) {
	s.Stop()
	s.printer.Error(format, args...)
}

func (s *Spinner) render() {
	s.mu.Lock()
	frame := s.frames[s.current]
	s.current = (s.current + 1) % len(s.frames)
	s.mu.Unlock()

	s.printer.mu.Lock()
	defer s.printer.mu.Unlock()
	fmt.Fprintf(s.printer.writer, "\r%s%s%s %s", ColorCyan, frame, ColorReset, s.prefix)
}

// isTerminal checks if w is a character device
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
