package main

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List posts",
	GroupID: "posts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := listRequestFromFlags(cmd)

		resp, err := metarevClient.ListPosts(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing posts: %w", err)
		}

		if jsonOutput {
			printJSON(resp.Posts)
			return nil
		}
		printPostListTable(cmd.OutOrStdout(), resp.Posts, resp.Total)
		return nil
	},
}

func listRequestFromFlags(cmd *cobra.Command) *client.ListPostsRequest {
	req := &client.ListPostsRequest{}
	req.Type, _ = cmd.Flags().GetStringSlice("type")
	req.Status, _ = cmd.Flags().GetStringSlice("status")
	req.Search, _ = cmd.Flags().GetString("search")
	req.Sort, _ = cmd.Flags().GetString("sort")
	req.Limit, _ = cmd.Flags().GetInt("limit")
	req.Offset, _ = cmd.Flags().GetInt("offset")
	return req
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("type", "t", nil, "filter by content type (repeatable)")
	cmd.Flags().StringSliceP("status", "s", nil, "filter by status (repeatable)")
	cmd.Flags().String("search", "", "match titles containing this text")
	cmd.Flags().String("sort", "-updated_at", "sort field, prefix with - for descending")
	cmd.Flags().Int("limit", 20, "maximum number of posts")
	cmd.Flags().Int("offset", 0, "number of posts to skip")
}

func init() {
	addListFlags(listCmd)
}
