// Package ui holds the terminal presentation helpers shared by the CLI
// commands: color policy and phase-aware styling for the status roster.
package ui

import (
	"fmt"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorOK     = 71  // green
	colorWarn   = 178 // amber
	colorBad    = 167 // red
	colorMuted  = 245 // medium gray
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderStale returns s styled as a staleness warning.
func RenderStale(s string) string { return render(colorBad, s) }

// RenderPhase colors a phase string for the status roster: green while the
// agent is making progress, amber while it waits, red for error exits.
func RenderPhase(p model.Phase) string {
	s := string(p)
	switch p {
	case model.PhaseWorking, model.PhaseAddressingFeedback:
		return render(colorOK, s)
	case model.PhaseStarting, model.PhaseIdle, model.PhaseWaitingReview:
		return render(colorWarn, s)
	case model.PhaseExitedError, model.PhaseExitedTerminated:
		return render(colorBad, s)
	default:
		return render(colorMuted, s)
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
