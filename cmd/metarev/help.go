package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/alfredjeanlab/metarev/internal/ui"
	"github.com/spf13/cobra"
)

// helpRule styles every match of pattern. Submatch groups listed in keep
// are copied through unstyled; the group at style is painted.
type helpRule struct {
	pattern *regexp.Regexp
	paint   func(string) string
	keep    []int
	style   int
}

// helpRules are applied in order to cobra's plain-text usage output.
var helpRules = []helpRule{
	// Group and section headers such as "Posts:" or "Flags:".
	{pattern: regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), paint: ui.RenderAccent, style: 1},
	// Command names in a command list.
	{pattern: regexp.MustCompile(`(?m)^(  )(\S+)(  )`), paint: ui.RenderCommand, keep: []int{1, 3}, style: 2},
	// Flag value types, e.g. "--limit int".
	{pattern: regexp.MustCompile(`(--?\S+\s+)(string|int|int64|duration|stringArray|stringSlice)\b`), paint: ui.RenderMuted, keep: []int{1}, style: 2},
	// Quoted defaults.
	{pattern: regexp.MustCompile(`(\(default [^)]*\))`), paint: ui.RenderMuted, style: 1},
}

func (r helpRule) apply(s string) string {
	return r.pattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := r.pattern.FindStringSubmatch(match)
		var out string
		for i := 1; i < len(parts); i++ {
			if i == r.style {
				out += r.paint(parts[i])
				continue
			}
			for _, k := range r.keep {
				if k == i {
					out += parts[i]
				}
			}
		}
		return out
	})
}

// colorizedHelpFunc returns a cobra help function that styles the usage
// text when stdout supports color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if noColor || !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	for _, r := range helpRules {
		s = r.apply(s)
	}
	return s
}
