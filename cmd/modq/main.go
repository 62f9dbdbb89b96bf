package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires the subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}
	decideFlags := &DecideFlags{}
	serveFlags := &ServeFlags{}

	cmds := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createPendingCommand(cmds, apiFlags),
		createPollCommand(cmds, apiFlags),
		createDecideCommand(cmds, decideFlags),
		createStatusCommand(cmds, apiFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "modq",
		Short: "Approval queue daemon for scheduled posts",
		Long: `Modq watches a tabular store (SQL table or CSV sheet) for posts in
pending status, prompts an approver over chat with approve/reject
controls, and writes the verdict back to the store.

Examples:
  modq serve --config=modq.toml    # Start daemon
  modq pending                     # List pending posts
  modq decide --ref=3-0 --verdict=approve`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createServeCommand creates the serve subcommand.
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the approval queue daemon",
		Long: `Run the daemon: poll the store on the configured schedule, prompt the
approver over the configured transport, and expose the HTTP API.

Examples:
  modq serve --config=modq.toml
  modq serve --config=modq.toml --listen=:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(globalFlags.ConfigPath, *serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

// createPendingCommand creates the pending subcommand.
func createPendingCommand(cmds command, apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List posts awaiting approval",
		Long: `List the daemon's current snapshot of pending posts with the refs
needed by the decide command.

Examples:
  modq pending
  modq pending --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Pending(*apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createPollCommand creates the poll subcommand.
func createPollCommand(cmds command, apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Trigger an immediate poll cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Poll(*apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

// createDecideCommand creates the decide subcommand.
func createDecideCommand(cmds command, decideFlags *DecideFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Approve or reject a pending post",
		Long: `Submit a verdict for a post using the ref printed by pending/poll.
Refs are valid only for the current snapshot; a stale ref is rejected
and the list must be re-fetched.

Examples:
  modq decide --ref=3-0 --verdict=approve
  modq decide --ref=3-1 --verdict=reject`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Decide(*decideFlags)
		},
	}
	cmd.Flags().StringVar(&decideFlags.Ref, "ref", "", "snapshot ref of the post (required)")
	cmd.Flags().StringVar(&decideFlags.Verdict, "verdict", "", "approve or reject (required)")
	addAPIFlags(cmd, &decideFlags.APIFlags)
	if err := cmd.MarkFlagRequired("ref"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("verdict"); err != nil {
		panic(err)
	}
	return cmd
}

// createStatusCommand creates the status subcommand.
func createStatusCommand(cmds command, apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmds.Status(*apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}
