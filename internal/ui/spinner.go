package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerTick = 80 * time.Millisecond

// Spinner shows progress on a single line while a blocking fetch runs.
type Spinner struct {
	mu        sync.Mutex
	label     string
	frame     int
	startTime time.Time
	output    func(string)
	running   bool
	lastWidth int
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewSpinner creates a spinner. Output defaults to fmt.Print.
func NewSpinner(label string) *Spinner {
	return &Spinner{
		label:  label,
		output: func(s string) { fmt.Print(s) },
	}
}

// SetOutput redirects rendering.
func (s *Spinner) SetOutput(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = fn
}

// Start begins animating. Calling Start twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startTime = time.Now()
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	s.render()
	go s.animate()
}

// Running reports whether the spinner is animating.
func (s *Spinner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done stops the spinner and prints a final line: a check on success, or
// a cross plus the error's first line on failure.
func (s *Spinner) Done(err error) {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolSuccess)
	suffix := ""
	if err != nil {
		symbol = lipgloss.NewStyle().Foreground(ColorError).Render(SymbolFail)
		msg := strings.TrimPrefix(err.Error(), SymbolFail+" ")
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		suffix = " " + lipgloss.NewStyle().Foreground(ColorError).Render(msg)
	}

	elapsed := time.Duration(0)
	if !s.startTime.IsZero() {
		elapsed = time.Since(s.startTime)
	}
	timing := lipgloss.NewStyle().Foreground(ColorMuted).Render(formatDuration(elapsed))

	s.clearLocked()
	s.output(fmt.Sprintf("%s %s %s%s\n", symbol, s.label, timing, suffix))
}

func (s *Spinner) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	<-s.doneChan
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := lipgloss.NewStyle().Foreground(ColorInfo).Render(spinnerFrames[s.frame])
	line := fmt.Sprintf("%s %s...", frame, s.label)

	s.clearLocked()
	s.output("\r" + line)
	s.lastWidth = lipgloss.Width(line)
}

func (s *Spinner) clearLocked() {
	if s.lastWidth > 0 {
		s.output("\r" + strings.Repeat(" ", s.lastWidth) + "\r")
		s.lastWidth = 0
	}
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
