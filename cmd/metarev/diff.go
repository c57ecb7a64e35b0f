package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/textdiff"
	"github.com/alfredjeanlab/metarev/internal/ui"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <left-id> <right-id>",
	Short: "Compare two versions of a post",
	Long: `Compare two versions of the same post. Either side may be a revision
or the live post itself.

By default the comparison is a unified diff of the core fields and every
tracked meta key and taxonomy. --screen prints the server-rendered
revision screen instead.`,
	GroupID: "revisions",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		leftID, err := parseID(args[0])
		if err != nil {
			return err
		}
		rightID, err := parseID(args[1])
		if err != nil {
			return err
		}
		ctx := context.Background()

		if screen, _ := cmd.Flags().GetBool("screen"); screen || jsonOutput {
			s, err := metarevClient.DiffRevisions(ctx, leftID, rightID)
			if err != nil {
				return fmt.Errorf("comparing %d and %d: %w", leftID, rightID, err)
			}
			if jsonOutput {
				printJSON(s)
			} else {
				printRevisionScreen(cmd.OutOrStdout(), s)
			}
			return nil
		}

		left, err := metarevClient.GetPost(ctx, leftID)
		if err != nil {
			return fmt.Errorf("getting %d: %w", leftID, err)
		}
		right, err := metarevClient.GetPost(ctx, rightID)
		if err != nil {
			return fmt.Errorf("getting %d: %w", rightID, err)
		}
		owner := ownerID(left)
		if ownerID(right) != owner {
			return fmt.Errorf("%d and %d are not versions of the same post", leftID, rightID)
		}
		live := left
		if live.ID != owner {
			if live, err = metarevClient.GetPost(ctx, owner); err != nil {
				return fmt.Errorf("getting %d: %w", owner, err)
			}
		}
		tracked, err := metarevClient.ListFields(ctx, string(live.Type))
		if err != nil {
			return fmt.Errorf("listing tracked fields: %w", err)
		}

		lines, _ := cmd.Flags().GetInt("context")
		sections, err := diffSections(left, right, tracked, lines)
		if err != nil {
			return err
		}
		printDiffSections(cmd.OutOrStdout(), sections)
		return nil
	},
}

// diffSection is the unified diff of one field.
type diffSection struct {
	Label string
	Diff  string
}

func ownerID(p *model.Post) int64 {
	if parent := p.IsRevision(); parent != 0 {
		return parent
	}
	return p.ID
}

// fieldText flattens a tracked field of p into diffable text, one value
// per line.
func fieldText(p *model.Post, f model.TrackedField) string {
	var lines []string
	switch f.Kind {
	case model.FieldKindTaxonomy:
		for _, t := range p.Terms[f.Name] {
			lines = append(lines, t.Name)
		}
	default:
		for _, v := range p.Meta[f.Name] {
			lines = append(lines, fields.Printable(v))
		}
	}
	return strings.Join(lines, "\n")
}

// diffSections compares the core fields and then every tracked field of
// left and right. Unchanged fields are left out.
func diffSections(left, right *model.Post, tracked []model.TrackedField, contextLines int) ([]diffSection, error) {
	from := fmt.Sprintf("#%d", left.ID)
	to := fmt.Sprintf("#%d", right.ID)

	var out []diffSection
	add := func(label, l, r string) error {
		d, err := textdiff.Unified(l, r, from, to, contextLines)
		if err != nil {
			return fmt.Errorf("diffing %s: %w", label, err)
		}
		if d != "" {
			out = append(out, diffSection{Label: label, Diff: d})
		}
		return nil
	}

	for _, f := range model.CoreFields() {
		if err := add(f.Label, left.CoreValue(f.Name), right.CoreValue(f.Name)); err != nil {
			return nil, err
		}
	}
	for _, f := range tracked {
		label := f.Label
		if label == "" {
			label = f.Name
		}
		if err := add(label, fieldText(left, f), fieldText(right, f)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func printDiffSections(w io.Writer, sections []diffSection) {
	if len(sections) == 0 {
		fmt.Fprintln(w, "These revisions are identical.")
		return
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, ui.RenderAccent(s.Label+":"))
		fmt.Fprint(w, ui.ColorizeDiff(s.Diff))
	}
}

func init() {
	diffCmd.Flags().Bool("screen", false, "print the server-rendered revision screen")
	diffCmd.Flags().IntP("context", "U", 3, "lines of context")
}
