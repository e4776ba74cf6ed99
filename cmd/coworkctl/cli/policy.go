package cli

import (
	"github.com/spf13/cobra"

	"github.com/coworkhub/coworkhub/internal/app"
)

func newPolicyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the route policy",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective policy as TOML",
		Long: `Print the effective policy, built-in defaults merged with --policy,
in the format accepted by POLICY_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := app.LoadPolicy(opts.policyFile, opts.adminUnlisted)
			if err != nil {
				return err
			}
			return app.EncodePolicy(cmd.OutOrStdout(), bundle)
		},
	})
	return cmd
}
