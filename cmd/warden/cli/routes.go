package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/authz"
)

func newRoutesCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route authorization table",
		Long: `Print every route the gateway knows about and how it is gated.

The authorization table is declared statically; this command is the
human-readable view of what the server enforces.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutes(cmd, asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output the table as YAML")

	return cmd
}

type routeEntry struct {
	Method  string `yaml:"method"`
	Path    string `yaml:"path"`
	Access  string `yaml:"access"`
	MinRole string `yaml:"min_role,omitempty"`
}

func runRoutes(cmd *cobra.Command, asYAML bool) error {
	entries := []routeEntry{
		{Method: "GET", Path: "/", Access: "public"},
		{Method: "GET", Path: "/health", Access: "public"},
		{Method: "POST", Path: "/webhooks/shopify", Access: "webhook-signature"},
		{Method: "POST", Path: "/webhooks/stripe", Access: "webhook-signature"},
		{Method: "POST", Path: "/webhooks/printful", Access: "webhook-signature"},
		{Method: "GET", Path: "/ws", Access: "token-query-param"},
	}
	for _, rule := range authz.Table {
		entries = append(entries, routeEntry{
			Method:  rule.Method,
			Path:    rule.Pattern,
			Access:  "token",
			MinRole: string(rule.MinRole),
		})
	}

	if asYAML {
		out, err := yaml.Marshal(map[string][]routeEntry{"routes": entries})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	}

	for _, e := range entries {
		if e.MinRole != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-40s %s (min role: %s)\n", e.Method, e.Path, e.Access, e.MinRole)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-40s %s\n", e.Method, e.Path, e.Access)
		}
	}
	return nil
}
