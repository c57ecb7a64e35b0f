package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/metarev/internal/ui"
	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:     "types",
	Short:   "List content types and their tracked fields",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := metarevClient.ListTypes(context.Background())
		if err != nil {
			return fmt.Errorf("listing types: %w", err)
		}
		if jsonOutput {
			printJSON(types)
			return nil
		}

		w := cmd.OutOrStdout()
		for i, t := range types {
			if i > 0 {
				fmt.Fprintln(w)
			}
			label := string(t.Name)
			if t.Label != "" {
				label += " (" + t.Label + ")"
			}
			fmt.Fprintln(w, ui.RenderAccent(label))
			if !t.Revisions {
				fmt.Fprintln(w, ui.RenderMuted("  revisions disabled"))
			}
			if len(t.Taxonomies) > 0 {
				fmt.Fprintf(w, "  taxonomies: %s\n", strings.Join(t.Taxonomies, ", "))
			}
			if len(t.Fields) == 0 {
				fmt.Fprintln(w, ui.RenderMuted("  no tracked fields"))
				continue
			}
			for _, f := range t.Fields {
				fmt.Fprintf(w, "  %-9s %-20s %s\n", f.Kind, f.Name, f.Label)
			}
		}
		return nil
	},
}
