// Command metarev is the command line client and server for post revisions.
package main

import (
	"os"
	"os/exec"
	"strings"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/alfredjeanlab/metarev/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags.
var (
	httpURL    string
	authToken  string
	actor      string
	jsonOutput bool
	noColor    bool
)

// metarevClient is built from the global flags before any command runs.
var metarevClient client.MetarevClient

// firstOf returns the first non-empty value.
func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func gitUserName() string {
	out, err := exec.Command("git", "config", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// Flag defaults: environment first, then the current remote.
func defaultHTTPURL() string {
	return firstOf(os.Getenv("METAREV_URL"), currentRemote().URL, "http://localhost:8080")
}

func defaultToken() string {
	return firstOf(os.Getenv("METAREV_TOKEN"), currentRemote().Token)
}

func defaultActor() string {
	if a := firstOf(os.Getenv("METAREV_ACTOR"), currentRemote().Actor); a != "" {
		return a
	}
	return firstOf(gitUserName(), "unknown")
}

var rootCmd = &cobra.Command{
	Use:   "metarev <command>",
	Short: "Track, compare and restore post revisions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		c := client.NewHTTPClient(httpURL, authToken)
		c.SetActor(actor)
		metarevClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if metarevClient != nil {
			_ = metarevClient.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&httpURL, "url", defaultHTTPURL(), "metarev server URL")
	pf.StringVar(&authToken, "token", defaultToken(), "bearer token")
	pf.StringVar(&actor, "actor", defaultActor(), "name recorded on revisions and events")
	pf.BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	for _, g := range []struct {
		group *cobra.Group
		cmds  []*cobra.Command
	}{
		{&cobra.Group{ID: "posts", Title: "Posts:"}, []*cobra.Command{showCmd, listCmd, createCmd, updateCmd, deleteCmd, lockCmd}},
		{&cobra.Group{ID: "revisions", Title: "Revisions:"}, []*cobra.Command{revisionsCmd, diffCmd, restoreCmd}},
		{&cobra.Group{ID: "views", Title: "Views:"}, []*cobra.Command{eventsCmd, watchCmd, typesCmd}},
		{&cobra.Group{ID: "system", Title: "System:"}, []*cobra.Command{serveCmd, healthCmd, remoteCmd}},
	} {
		rootCmd.AddGroup(g.group)
		rootCmd.AddCommand(g.cmds...)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
