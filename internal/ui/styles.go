package ui

import (
	"fmt"
	"strings"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent  = 74  // blue
	colorCmd     = 250 // light gray
	colorMuted   = 245 // medium gray
	colorAdded   = 114 // green
	colorRemoved = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderAdded returns s in the added-line (green) color.
func RenderAdded(s string) string { return paint(colorAdded, s) }

// RenderRemoved returns s in the removed-line (red) color.
func RenderRemoved(s string) string { return paint(colorRemoved, s) }

// ColorizeDiff colors the lines of a unified diff.
func ColorizeDiff(diff string) string {
	if noColor || diff == "" {
		return diff
	}
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = RenderMuted(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = RenderAccent(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = RenderAdded(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = RenderRemoved(line)
		}
	}
	return strings.Join(lines, "\n")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
