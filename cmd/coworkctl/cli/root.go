// Package cli implements coworkctl, the operator tool for the access gateway.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	policyFile    string
	adminUnlisted bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "coworkctl",
		Short: "coworkctl - coworkhub access gateway operator tool",
		Long: `coworkctl inspects the route policy, checks role access for a path,
issues session tokens for testing and triggers maintenance jobs.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.policyFile, "policy", os.Getenv("POLICY_FILE"), "TOML policy file (defaults to the built-in policy)")
	root.PersistentFlags().BoolVar(&opts.adminUnlisted, "admin-unlisted", true, "let ADMIN reach paths missing from the route table")

	root.AddCommand(newAccessCmd(opts))
	root.AddCommand(newPolicyCmd(opts))
	root.AddCommand(newTokenCmd())
	root.AddCommand(newJobsCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
