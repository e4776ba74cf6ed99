package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/app"
)

type accessDecision struct {
	Role     string   `json:"role"`
	Path     string   `json:"path"`
	Public   bool     `json:"public"`
	Allowed  bool     `json:"allowed"`
	Route    string   `json:"route,omitempty"`
	Required []string `json:"required,omitempty"`
	Redirect string   `json:"redirect,omitempty"`
}

func newAccessCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Evaluate the route policy",
	}
	cmd.AddCommand(newAccessCheckCmd(opts))
	return cmd
}

func newAccessCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		roleName   string
		path       string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether a role may open a path",
		Example: `  coworkctl access check --role STAFF --path /dashboard/schedule
  coworkctl access check --role CLIENT --path /api/admin/users --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := access.ParseRole(roleName)
			if err != nil {
				return err
			}
			policy, err := loadPolicy(opts)
			if err != nil {
				return err
			}
			decision := evaluate(policy, role, path)
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(decision)
			}
			switch {
			case decision.Public:
				fmt.Fprintf(out, "ALLOW %s (public)\n", decision.Path)
			case decision.Allowed && decision.Route == "":
				fmt.Fprintf(out, "ALLOW %s for %s (unlisted admin fallthrough)\n", decision.Path, decision.Role)
			case decision.Allowed:
				fmt.Fprintf(out, "ALLOW %s for %s via %s [%s]\n", decision.Path, decision.Role, decision.Route, strings.Join(decision.Required, ","))
			case decision.Route == "":
				fmt.Fprintf(out, "DENY %s for %s (no matching route) -> %s\n", decision.Path, decision.Role, decision.Redirect)
			default:
				fmt.Fprintf(out, "DENY %s for %s via %s [%s] -> %s\n", decision.Path, decision.Role, decision.Route, strings.Join(decision.Required, ","), decision.Redirect)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&roleName, "role", "", "role to evaluate (ADMIN, MANAGER, STAFF, CLIENT)")
	cmd.Flags().StringVar(&path, "path", "", "request path")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func evaluate(policy *access.Policy, role access.Role, path string) accessDecision {
	decision := accessDecision{Role: string(role), Path: path}
	if policy.IsPublicRoute(path) {
		decision.Public = true
		decision.Allowed = true
		return decision
	}
	if route, ok := policy.FindMatchingRoute(path); ok {
		decision.Route = route.Path
		for _, r := range route.AllowedRoles {
			decision.Required = append(decision.Required, string(r))
		}
	}
	decision.Allowed = policy.HasRouteAccess(role, path)
	if !decision.Allowed {
		decision.Redirect = access.DashboardFor(role)
		if decision.Redirect == path {
			decision.Redirect = access.UnauthorizedPath
		}
	}
	return decision
}

func loadPolicy(opts *rootOptions) (*access.Policy, error) {
	bundle, err := app.LoadPolicy(opts.policyFile, opts.adminUnlisted)
	if err != nil {
		return nil, err
	}
	return access.NewPolicy(bundle.Policy)
}
