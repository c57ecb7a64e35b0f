package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage the metarev servers this CLI knows about",
	GroupID: "system",
	// Remote subcommands only read and write the remotes file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a remote, or replace one with the same name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := Remote{URL: args[1]}
		r.Token, _ = cmd.Flags().GetString("token")
		r.NATSURL, _ = cmd.Flags().GetString("nats")
		r.Actor, _ = cmd.Flags().GetString("as")

		err := editRemotes(func(f *remoteFile) error {
			if len(f.Remotes) == 0 {
				f.Current = args[0]
			}
			f.Remotes[args[0]] = r
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved remote %s -> %s\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:     "rm <name>",
	Aliases: []string{"remove"},
	Short:   "Forget a remote",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := editRemotes(func(f *remoteFile) error {
			if _, err := f.lookup(args[0]); err != nil {
				return err
			}
			delete(f.Remotes, args[0])
			if f.Current == args[0] {
				f.Current = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed remote %s\n", args[0])
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List remotes; the current one is starred",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readRemotes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(f.Remotes) == 0 {
			fmt.Fprintln(out, "No remotes. Add one with: metarev remote add <name> <url>")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tURL\tACTOR\tTOKEN")
		for _, name := range f.sortedNames() {
			r := f.Remotes[name]
			star := " "
			if name == f.Current {
				star = "*"
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", star, name, r.URL, r.Actor, redact(r.Token, 8, ""))
		}
		return tw.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a remote the default for later commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := editRemotes(func(f *remoteFile) error {
			if _, err := f.lookup(args[0]); err != nil {
				return err
			}
			f.Current = args[0]
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Now using remote %s\n", args[0])
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show one remote (the current one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readRemotes()
		if err != nil {
			return err
		}
		name := f.Current
		if len(args) > 0 {
			name = args[0]
		}
		if name == "" {
			return errors.New("no current remote: pass a name or run 'metarev remote use <name>'")
		}
		r, err := f.lookup(name)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
		fmt.Fprintf(tw, "Name:\t%s", name)
		if name == f.Current {
			fmt.Fprint(tw, " (current)")
		}
		fmt.Fprintf(tw, "\nURL:\t%s\n", r.URL)
		for _, row := range [][2]string{
			{"Actor:", r.Actor},
			{"NATS:", r.NATSURL},
			{"Token:", redact(r.Token, 8, "*")},
		} {
			if row[1] != "" {
				fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
			}
		}
		return tw.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token sent to the server")
	remoteAddCmd.Flags().String("nats", "", "NATS URL that 'metarev watch' follows")
	remoteAddCmd.Flags().String("as", "", "actor recorded on revisions made through this remote")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
