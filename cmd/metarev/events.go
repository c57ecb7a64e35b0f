package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:     "events <post-id>",
	Short:   "Show the recorded events of a post",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		evts, err := metarevClient.GetEvents(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting events of %d: %w", id, err)
		}
		if jsonOutput {
			printJSON(evts)
			return nil
		}
		if len(evts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTOPIC\tACTOR")
		for _, e := range evts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Topic, e.Actor)
		}
		return w.Flush()
	},
}
