package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show a post with its meta and terms",
	GroupID: "posts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		post, err := metarevClient.GetPost(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting post %d: %w", id, err)
		}

		if jsonOutput {
			printJSON(post)
			return nil
		}
		printPostTable(cmd.OutOrStdout(), post)
		return nil
	},
}
