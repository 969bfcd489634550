package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform := runtime.GOOS + "/" + runtime.GOARCH

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"version":  version,
					"commit":   commit,
					"built":    date,
					"go":       runtime.Version(),
					"platform": platform,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "warden %s (%s, built %s)\n", version, commit, date)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s on %s\n", runtime.Version(), platform)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
