package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor decides whether stdout gets ANSI styling. NO_COLOR wins
// over everything, CLICOLOR_FORCE=1 enables color for pipes, CLICOLOR=0
// disables it, and otherwise color follows whether stdout is a terminal.
func ShouldUseColor() bool {
	return colorWanted(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

func colorWanted(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0":
		return false
	}
	return tty
}
