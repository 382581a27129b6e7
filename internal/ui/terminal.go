package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether status output on stdout should carry ANSI
// colors. Precedence: NO_COLOR, then CLICOLOR_FORCE, then CLICOLOR, then
// whether stdout is a terminal.
func ShouldUseColor() bool {
	return colorEnabled(int(os.Stdout.Fd()))
}

func colorEnabled(fd int) bool {
	if os.Getenv("NO_COLOR") != "" {
		// https://no-color.org — any non-empty value wins.
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(fd)
}

// IsInteractive reports whether stdin is a terminal. Agents only block on
// human questions when someone can actually type an answer.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
