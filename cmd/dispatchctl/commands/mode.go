package commands

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"smartdispatch/internal/modules/dispatch"
)

type modeResponse struct {
	Mode string        `json:"mode"`
	Name dispatch.Mode `json:"mode_name"`
}

// NewModeCmd shows or switches the driver's mode.
func NewModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [name]",
		Short: "Show or switch the dispatch mode",
		Long: `Without an argument, print the current mode. With one, switch to it.

Modes: plan (mode1), threshold (mode2), locality (mode3), paused (pause).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp modeResponse
			var raw []byte
			var err error
			if len(args) == 0 {
				raw, err = newClient().do(cmd.Context(), http.MethodGet, "/driver_mode", nil, &resp)
			} else {
				if _, perr := dispatch.ParseMode(args[0]); perr != nil {
					return errors.New("unknown mode " + args[0] + "; use plan, threshold, locality or paused")
				}
				raw, err = newClient().do(cmd.Context(), http.MethodPut, "/driver_mode", map[string]string{"mode": args[0]}, &resp)
			}
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", resp.Name, resp.Mode)
			return nil
		},
	}
}
