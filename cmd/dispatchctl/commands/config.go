package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"smartdispatch/internal/modules/dispatch"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or tune per-mode thresholds",
		Long:  `Show or tune the threshold and locality settings. All values are minutes except the profit floor.`,
	}
	cmd.AddCommand(newConfigGetCmd(), newConfigSetCmd())
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg dispatch.ModeConfig
			raw, err := newClient().do(cmd.Context(), http.MethodGet, "/driver_mode_config", nil, &cfg)
			if err != nil {
				return err
			}
			return printModeConfig(cmd.OutOrStdout(), raw, cfg)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var detourMax, easyDetour, profitFloor, radius, localityMax float64
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more thresholds",
		Long: `Change thresholds. Only the flags given are sent.

Examples:
  dispatchctl config set --detour-max 20
  dispatchctl config set --radius 15 --locality-detour-max 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch dispatch.ModeConfigPatch
			flags := cmd.Flags()
			if flags.Changed("detour-max") {
				patch.Mode2DetourMax = &detourMax
			}
			if flags.Changed("easy-detour") {
				patch.Mode2EasyDetour = &easyDetour
			}
			if flags.Changed("profit-floor") {
				patch.Mode2HighProfitThreshold = &profitFloor
			}
			if flags.Changed("radius") {
				patch.Mode3RadiusMinutes = &radius
			}
			if flags.Changed("locality-detour-max") {
				patch.Mode3DetourMax = &localityMax
			}
			if patch == (dispatch.ModeConfigPatch{}) {
				return errors.New("nothing to change; pass at least one flag")
			}
			var cfg dispatch.ModeConfig
			raw, err := newClient().do(cmd.Context(), http.MethodPut, "/driver_mode_config", patch, &cfg)
			if err != nil {
				return err
			}
			return printModeConfig(cmd.OutOrStdout(), raw, cfg)
		},
	}
	cmd.Flags().Float64Var(&detourMax, "detour-max", 0, "Threshold mode: largest acceptable detour")
	cmd.Flags().Float64Var(&easyDetour, "easy-detour", 0, "Threshold mode: detour accepted at any price")
	cmd.Flags().Float64Var(&profitFloor, "profit-floor", 0, "Threshold mode: minimum price above the easy detour")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Locality mode: pickup radius around the next drop-off")
	cmd.Flags().Float64Var(&localityMax, "locality-detour-max", 0, "Locality mode: largest detour after the next drop-off")
	return cmd
}

func printModeConfig(w io.Writer, raw []byte, cfg dispatch.ModeConfig) error {
	if opts.asJSON {
		return printJSON(w, raw)
	}
	fmt.Fprintf(w, "threshold: detour max %.1f min, easy detour %.1f min, profit floor %.2f\n",
		cfg.Mode2DetourMax, cfg.Mode2EasyDetour, cfg.Mode2HighProfitThreshold)
	fmt.Fprintf(w, "locality:  radius %.1f min, detour max %.1f min\n", cfg.Mode3RadiusMinutes, cfg.Mode3DetourMax)
	return nil
}
