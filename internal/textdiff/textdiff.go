// Package textdiff renders line-based differences between two strings, as
// an HTML two-column table for the revision screen and as a unified diff
// for terminals.
package textdiff

import (
	"html"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var inlineSpace = regexp.MustCompile(`[ \t]+`)

// Normalize trims the string, unifies line endings, and collapses runs of
// spaces and tabs so whitespace-only edits do not show up as changes.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = inlineSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// HTML returns an HTML table with the left text in the first column and the
// right text in the second, or "" when the normalized texts are equal.
func HTML(left, right string) string {
	left, right = Normalize(left), Normalize(right)
	if left == right {
		return ""
	}
	a := difflib.SplitLines(left)
	b := difflib.SplitLines(right)
	m := difflib.NewMatcher(a, b)

	var sb strings.Builder
	sb.WriteString(`<table class="diff"><col class="ltype" /><col class="content" /><col class="ltype" /><col class="content" /><tbody>`)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i := op.I1; i < op.I2; i++ {
				line := cell(a[i])
				sb.WriteString(`<tr><td> </td><td class="diff-context">` + line + `</td><td> </td><td class="diff-context">` + line + `</td></tr>`)
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				sb.WriteString(`<tr><td>-</td><td class="diff-deletedline">` + cell(a[i]) + `</td><td> </td><td></td></tr>`)
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				sb.WriteString(`<tr><td> </td><td></td><td>+</td><td class="diff-addedline">` + cell(b[j]) + `</td></tr>`)
			}
		case 'r':
			n := max(op.I2-op.I1, op.J2-op.J1)
			for k := 0; k < n; k++ {
				sb.WriteString("<tr>")
				if i := op.I1 + k; i < op.I2 {
					sb.WriteString(`<td>-</td><td class="diff-deletedline">` + cell(a[i]) + `</td>`)
				} else {
					sb.WriteString(`<td> </td><td></td>`)
				}
				if j := op.J1 + k; j < op.J2 {
					sb.WriteString(`<td>+</td><td class="diff-addedline">` + cell(b[j]) + `</td>`)
				} else {
					sb.WriteString(`<td> </td><td></td>`)
				}
				sb.WriteString("</tr>")
			}
		}
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

func cell(line string) string {
	return html.EscapeString(strings.TrimRight(line, "\n"))
}

// Unified returns a unified diff of the two texts with the given number of
// context lines, or "" when the normalized texts are equal.
func Unified(left, right, fromName, toName string, context int) (string, error) {
	left, right = Normalize(left), Normalize(right)
	if left == right {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(left + "\n"),
		B:        difflib.SplitLines(right + "\n"),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	})
}
