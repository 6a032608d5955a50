// Package main is the gitstate command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := version
	if commit != "unknown" {
		v += " (" + commit + ")"
	}
	err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(v))
	return exitCode(err)
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gitstate",
		Short: "Cached, event-driven view of a git repository",
		Long: `gitstate keeps a cached view of a git repository current.

File system changes and gitstate's own commands invalidate cached facts
(status, branches, log, locks, remotes); invalidations settle into one
refresh and every fact that changed is reported once.

All commands support --json for structured output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("repo", "C", ".", "Path inside the repository")
	flags.String("config", "", "Config file (default: .gitstate.toml in the repository, then the user config dir)")
	flags.Bool("json", false, "Output in JSON format")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("color", "auto", "Color output: auto, always or never")

	lipgloss.SetHasDarkBackground(true)

	cmd.AddGroup(
		&cobra.Group{ID: "view", Title: "View Commands:"},
		&cobra.Group{ID: "ops", Title: "Repository Commands:"},
	)
	for _, c := range []*cobra.Command{newStatusCmd(), newWatchCmd(), newHistoryCmd()} {
		c.GroupID = "view"
		cmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		newCommitCmd(), newSwitchCmd(), newBranchCmd(),
		newFetchCmd(), newPullCmd(), newPushCmd(), newRemoteCmd(),
	} {
		c.GroupID = "ops"
		cmd.AddCommand(c)
	}
	return cmd
}

func isJSONMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
