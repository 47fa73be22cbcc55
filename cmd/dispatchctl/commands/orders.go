// README: Order commands: evaluate by hand, answer a push, preview the current route.
package commands

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/modules/dispatch"
)

type routeFlags struct {
	loc        string
	pickups    []string
	deliveries []string
}

func (r *routeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.loc, "loc", "", "Driver location (address or lat,lng)")
	cmd.Flags().StringArrayVar(&r.pickups, "stop-pickup", nil, "Pickup of a committed order; empty when the rider is aboard (repeatable)")
	cmd.Flags().StringArrayVar(&r.deliveries, "stop-delivery", nil, "Drop-off of a committed order (repeatable, paired by position)")
	_ = cmd.MarkFlagRequired("loc")
}

func (r *routeFlags) state() detour.DriverState {
	s := detour.DriverState{Location: r.loc, Pickups: r.pickups, Deliveries: r.deliveries}
	if s.Pickups == nil {
		s.Pickups = []string{}
	}
	if s.Deliveries == nil {
		s.Deliveries = []string{}
	}
	return s
}

func NewEvaluateCmd() *cobra.Command {
	var route routeFlags
	var pickup, delivery, price string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Ask for a decision on an order",
		Long: `Evaluate an order against the driver's committed route, exactly as the
capture probe would. A matched order is recorded and pushed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"current_state": route.state(),
				"new_order":     map[string]string{"pickup": pickup, "delivery": delivery, "price": price},
			}
			var dec dispatch.Decision
			raw, err := newClient().do(cmd.Context(), http.MethodPost, "/evaluate_new_order", body, &dec)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			w := cmd.OutOrStdout()
			switch dec.Status {
			case dispatch.StatusMatched:
				fmt.Fprintf(w, "matched: +%.1f min, price %s\n", *dec.DetourMinutes, dec.Profit)
				if len(dec.RoutePreview) > 0 {
					fmt.Fprintf(w, "route: %s\n", strings.Join(dec.RoutePreview, " -> "))
				}
				fmt.Fprintf(w, "fingerprint: %s\n", dec.Fingerprint)
			default:
				fmt.Fprintf(w, "%s (%s): %s\n", dec.Status, dec.ReasonCode, dec.Reason)
			}
			return nil
		},
	}
	route.bind(cmd)
	cmd.Flags().StringVar(&pickup, "pickup", "", "Order pickup")
	cmd.Flags().StringVar(&delivery, "delivery", "", "Order drop-off")
	cmd.Flags().StringVar(&price, "price", "", "Order price as shown")
	_ = cmd.MarkFlagRequired("pickup")
	_ = cmd.MarkFlagRequired("delivery")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func NewResolveCmd() *cobra.Command {
	var accept, stop bool
	cmd := &cobra.Command{
		Use:   "resolve FINGERPRINT",
		Short: "Answer a pushed order",
		Long: `Record the driver's answer to a pushed order. Declined orders are never
pushed again. --stop ends the search: locality drivers switch to plan
mode, everyone else is paused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"fingerprint":        args[0],
				"accepted":           accept,
				"continue_searching": !stop,
			}
			var resp modeResponse
			raw, err := newClient().do(cmd.Context(), http.MethodPost, "/order_response", body, &resp)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded; mode is %s (%s)\n", resp.Name, resp.Mode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "The driver took the order")
	cmd.Flags().BoolVar(&stop, "stop", false, "Stop searching after this answer")
	return cmd
}

func NewPreviewCmd() *cobra.Command {
	var route routeFlags
	var tactics int
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the best order for the committed stops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"current_state": route.state(), "tactics": tactics}
			var p detour.Preview
			raw, err := newClient().do(cmd.Context(), http.MethodPost, "/current_route_preview", body, &p)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%.1f min total\n", strings.Join(p.Route, " -> "), detour.Minutes(p.TotalSeconds))
			return nil
		},
	}
	route.bind(cmd)
	cmd.Flags().IntVar(&tactics, "tactics", 0, "Route preference: 0 default, 3 avoid highways, 5 avoid congestion, 6 least fee")
	return cmd
}
