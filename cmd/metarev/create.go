package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:     "create <title>",
	Short:   "Create a post",
	GroupID: "posts",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.CreatePostRequest{Title: args[0], Author: actor}
		req.Type, _ = cmd.Flags().GetString("type")
		req.Status, _ = cmd.Flags().GetString("status")
		req.Name, _ = cmd.Flags().GetString("name")
		req.Content, _ = cmd.Flags().GetString("content")
		req.Excerpt, _ = cmd.Flags().GetString("excerpt")

		var err error
		metaPairs, _ := cmd.Flags().GetStringArray("meta")
		if req.Meta, err = parseMeta(metaPairs); err != nil {
			return err
		}
		termPairs, _ := cmd.Flags().GetStringArray("terms")
		if req.Terms, err = parseTerms(termPairs); err != nil {
			return err
		}

		post, err := metarevClient.CreatePost(context.Background(), req)
		if err != nil {
			return fmt.Errorf("creating post: %w", err)
		}

		if jsonOutput {
			printJSON(post)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %d\n", post.Type, post.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringP("type", "t", "post", "content type")
	createCmd.Flags().StringP("status", "s", "draft", "status (draft, publish, private)")
	createCmd.Flags().String("name", "", "slug")
	createCmd.Flags().StringP("content", "c", "", "post content")
	createCmd.Flags().String("excerpt", "", "post excerpt")
	createCmd.Flags().StringArrayP("meta", "m", nil, "meta value as key=value (repeatable)")
	createCmd.Flags().StringArray("terms", nil, "terms as taxonomy=slug,slug (repeatable)")
}
