package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var revisionsCmd = &cobra.Command{
	Use:     "revisions <post-id>",
	Short:   "List the revisions of a post, newest first",
	GroupID: "revisions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		revs, err := metarevClient.ListRevisions(context.Background(), id)
		if err != nil {
			return fmt.Errorf("listing revisions of %d: %w", id, err)
		}
		if jsonOutput {
			printJSON(revs)
			return nil
		}
		printRevisionList(cmd.OutOrStdout(), revs)
		return nil
	},
}

var revisionShowCmd = &cobra.Command{
	Use:   "show <revision-id>",
	Short: "Show a revision with its tracked fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		screen, err := metarevClient.GetRevision(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting revision %d: %w", id, err)
		}
		if jsonOutput {
			printJSON(screen)
			return nil
		}
		printRevisionScreen(cmd.OutOrStdout(), screen)
		return nil
	},
}

func init() {
	revisionsCmd.AddCommand(revisionShowCmd)
}
