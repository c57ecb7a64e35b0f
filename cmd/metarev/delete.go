package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Short:   "Delete posts and their revisions",
	GroupID: "posts",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			id, err := parseID(arg)
			if err != nil {
				return err
			}
			if err := metarevClient.DeletePost(context.Background(), id); err != nil {
				return fmt.Errorf("deleting post %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d\n", id)
		}
		return nil
	},
}
