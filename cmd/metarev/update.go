package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a post",
	Long: `Update a post through the programmatic path.

Tracked meta and terms are versioned before the write, alongside the
title, content and excerpt. Each --meta key replaces every value of
that key; --terms replaces the assignment of a taxonomy.`,
	GroupID: "posts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		req := &client.UpdatePostRequest{}
		stringFlag := func(name string) *string {
			if !cmd.Flags().Changed(name) {
				return nil
			}
			v, _ := cmd.Flags().GetString(name)
			return &v
		}
		req.Title = stringFlag("title")
		req.Content = stringFlag("content")
		req.Excerpt = stringFlag("excerpt")
		req.Status = stringFlag("status")
		req.Name = stringFlag("name")

		metaPairs, _ := cmd.Flags().GetStringArray("meta")
		if req.Meta, err = parseMeta(metaPairs); err != nil {
			return err
		}
		termPairs, _ := cmd.Flags().GetStringArray("terms")
		if req.Terms, err = parseTerms(termPairs); err != nil {
			return err
		}

		post, err := metarevClient.UpdatePost(context.Background(), id, req)
		if err != nil {
			return fmt.Errorf("updating post %d: %w", id, err)
		}

		if jsonOutput {
			printJSON(post)
			return nil
		}
		printPostTable(cmd.OutOrStdout(), post)
		return nil
	},
}

func init() {
	updateCmd.Flags().String("title", "", "post title")
	updateCmd.Flags().StringP("content", "c", "", "post content")
	updateCmd.Flags().String("excerpt", "", "post excerpt")
	updateCmd.Flags().StringP("status", "s", "", "status (draft, publish, private)")
	updateCmd.Flags().String("name", "", "slug")
	updateCmd.Flags().StringArrayP("meta", "m", nil, "meta value as key=value (repeatable; key= clears)")
	updateCmd.Flags().StringArray("terms", nil, "terms as taxonomy=slug,slug (repeatable; taxonomy= clears)")
}
