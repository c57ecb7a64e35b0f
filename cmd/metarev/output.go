package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printPostTable(w io.Writer, p *model.Post) {
	fmt.Fprintf(w, "ID:          %d\n", p.ID)
	fmt.Fprintf(w, "Type:        %s\n", p.Type)
	fmt.Fprintf(w, "Status:      %s\n", p.Status)
	fmt.Fprintf(w, "Title:       %s\n", p.Title)
	if p.Name != "" {
		fmt.Fprintf(w, "Name:        %s\n", p.Name)
	}
	if parent := p.IsRevision(); parent != 0 {
		fmt.Fprintf(w, "Revision of: %d\n", parent)
	}
	if p.Author != "" {
		fmt.Fprintf(w, "Author:      %s\n", p.Author)
	}
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:     %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if !p.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:     %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	if p.Excerpt != "" {
		fmt.Fprintf(w, "Excerpt:     %s\n", p.Excerpt)
	}
	if p.Content != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, p.Content)
	}

	if len(p.Meta) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.RenderAccent("Meta:"))
		for _, key := range sortedKeys(p.Meta) {
			values := make([]string, 0, len(p.Meta[key]))
			for _, v := range p.Meta[key] {
				values = append(values, fields.Printable(v))
			}
			fmt.Fprintf(w, "  %s: %s\n", key, strings.Join(values, ", "))
		}
	}
	if len(p.Terms) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.RenderAccent("Terms:"))
		for _, tax := range sortedKeys(p.Terms) {
			fmt.Fprintf(w, "  %s: %s\n", tax, termNames(p.Terms[tax]))
		}
	}
}

func printPostListTable(w io.Writer, posts []*model.Post, total int) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "No posts found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tTITLE\tUPDATED")
	for _, p := range posts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			p.ID, p.Type, p.Status, truncate(p.Title, 50), p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
	if total > len(posts) {
		fmt.Fprintln(w, ui.RenderMuted(fmt.Sprintf("(%d of %d)", len(posts), total)))
	}
}

func printRevisionList(w io.Writer, revs []*model.Post) {
	if len(revs) == 0 {
		fmt.Fprintln(w, "No revisions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REVISION\tCREATED\tAUTHOR\tTITLE")
	for _, r := range revs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Author, truncate(r.Title, 50))
	}
	tw.Flush()
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// plainText strips the markup of a rendered revision screen row.
func plainText(s string) string {
	s = strings.NewReplacer("</tr>", "\n", "</td><td", "</td> | <td", "<br>", "\n", "<br/>", "\n").Replace(s)
	s = tagPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

func printRevisionScreen(w io.Writer, screen *client.RevisionScreen) {
	switch {
	case screen.Revision != nil:
		fmt.Fprintf(w, "Revision %d of post %d (%s)\n",
			screen.Revision.ID, screen.Post.ID, screen.Revision.CreatedAt.Format("2006-01-02 15:04:05"))
	case screen.Left != nil && screen.Right != nil:
		fmt.Fprintf(w, "Comparing %d and %d of post %d\n", screen.Left.ID, screen.Right.ID, screen.Post.ID)
	}
	if screen.Identical {
		fmt.Fprintln(w, ui.RenderMuted("These revisions are identical."))
		return
	}
	for _, row := range screen.Rows {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.RenderAccent(row.Label+":"))
		for _, line := range strings.Split(plainText(row.HTML), "\n") {
			fmt.Fprintf(w, "  %s\n", strings.TrimSpace(line))
		}
	}
}

func termNames(terms []*model.Term) string {
	names := make([]string, 0, len(terms))
	for _, t := range terms {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
