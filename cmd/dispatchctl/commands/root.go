// README: Root command, global flags and the shared API client.
package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	apiBase string
	driver  string
	token   string
	asJSON  bool
}

var opts globalOptions

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Operate a running dispatch API",
		Long: `dispatchctl talks to the dispatch API over HTTP.

It switches the driver's mode, tunes thresholds, manages planned trips,
answers pushed orders and evaluates orders by hand.

Examples:
  dispatchctl mode mode3
  dispatchctl config set --detour-max 20
  dispatchctl trips add --origin 如东 --destination 上海 --departure 06:00
  dispatchctl evaluate --loc 32.31,121.18 --pickup 32.32,121.19 --delivery 31.23,121.47 --price 88`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			if !cmd.Flags().Changed("api") {
				if v := os.Getenv("DISPATCH_API"); v != "" {
					opts.apiBase = v
				}
			}
			if opts.token == "" {
				opts.token = os.Getenv("DISPATCH_API_TOKEN")
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.apiBase, "api", "http://localhost:8080", "Dispatch API base URL (env DISPATCH_API)")
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "Driver ID; the API default when empty")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "Firebase ID token (env DISPATCH_API_TOKEN)")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print raw JSON responses")

	cmd.AddCommand(
		NewModeCmd(),
		NewConfigCmd(),
		NewTripsCmd(),
		NewResolveCmd(),
		NewEvaluateCmd(),
		NewPreviewCmd(),
		NewVersionCmd(),
	)
	return cmd
}

func Execute() error {
	return NewRootCmd().Execute()
}

func newClient() *client {
	return &client{base: opts.apiBase, driver: opts.driver, token: opts.token}
}
