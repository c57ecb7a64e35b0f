package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <revision-id>",
	Short: "Restore a post to one of its revisions",
	Long: `Restore a post to one of its revisions.

The title, content and excerpt are copied back along with every tracked
meta key and taxonomy. The post's current state is saved as a new
revision first.`,
	GroupID: "revisions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revID, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := context.Background()

		rev, err := metarevClient.GetPost(ctx, revID)
		if err != nil {
			return fmt.Errorf("getting revision %d: %w", revID, err)
		}
		postID := rev.IsRevision()
		if postID == 0 {
			return fmt.Errorf("%d is not a revision", revID)
		}

		post, err := metarevClient.RestoreRevision(ctx, postID, revID)
		if err != nil {
			return fmt.Errorf("restoring revision %d: %w", revID, err)
		}
		if jsonOutput {
			printJSON(post)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored post %d to revision %d\n", post.ID, revID)
		return nil
	},
}
