// README: Planned trip queue commands.
package commands

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smartdispatch/internal/modules/dispatch"
)

type tripsResponse struct {
	Plans []dispatch.PlannedTrip `json:"plans"`
}

func NewTripsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trips",
		Short: "Manage planned trips",
		Long:  `List, add, edit and complete planned trips. Trips are addressed by their position in the list.`,
	}
	cmd.AddCommand(newTripsListCmd(), newTripsAddCmd(), newTripsUpdateCmd(), newTripsCompleteCmd())
	return cmd
}

func newTripsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List planned trips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp tripsResponse
			raw, err := newClient().do(cmd.Context(), http.MethodGet, "/planned_trip", nil, &resp)
			if err != nil {
				return err
			}
			return printTrips(cmd.OutOrStdout(), raw, resp.Plans)
		},
	}
}

func newTripsAddCmd() *cobra.Command {
	var origin, destination, departure string
	var window, minOrders, maxOrders int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a planned trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"origin":              origin,
				"destination":         destination,
				"departure_time":      departure,
				"time_window_minutes": window,
				"min_orders":          minOrders,
				"max_orders":          maxOrders,
			}
			var resp tripsResponse
			raw, err := newClient().do(cmd.Context(), http.MethodPost, "/planned_trip", body, &resp)
			if err != nil {
				return err
			}
			return printTrips(cmd.OutOrStdout(), raw, resp.Plans)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "Where the trip starts")
	cmd.Flags().StringVar(&destination, "destination", "", "Where the trip ends")
	cmd.Flags().StringVar(&departure, "departure", "", "Departure time as HH:MM")
	cmd.Flags().IntVar(&window, "window", dispatch.DefaultTimeWindowMinutes, "Search window in minutes")
	cmd.Flags().IntVar(&minOrders, "min-orders", dispatch.DefaultMinOrders, "Fewest orders worth the trip")
	cmd.Flags().IntVar(&maxOrders, "max-orders", dispatch.DefaultMaxOrders, "Most orders to take")
	_ = cmd.MarkFlagRequired("origin")
	_ = cmd.MarkFlagRequired("destination")
	_ = cmd.MarkFlagRequired("departure")
	return cmd
}

func newTripsUpdateCmd() *cobra.Command {
	var origin, destination, departure string
	cmd := &cobra.Command{
		Use:   "update INDEX",
		Short: "Edit a planned trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			body := map[string]any{"index": index}
			if cmd.Flags().Changed("origin") {
				body["origin"] = origin
			}
			if cmd.Flags().Changed("destination") {
				body["destination"] = destination
			}
			if cmd.Flags().Changed("departure") {
				body["departure_time"] = departure
			}
			var resp tripsResponse
			raw, err := newClient().do(cmd.Context(), http.MethodPut, "/planned_trip", body, &resp)
			if err != nil {
				return err
			}
			return printTrips(cmd.OutOrStdout(), raw, resp.Plans)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "New origin")
	cmd.Flags().StringVar(&destination, "destination", "", "New destination")
	cmd.Flags().StringVar(&departure, "departure", "", "New departure time as HH:MM")
	return cmd
}

func newTripsCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete INDEX",
		Short: "Stop searching for a planned trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("index must be an integer: %w", err)
			}
			var resp tripsResponse
			raw, err := newClient().do(cmd.Context(), http.MethodPost, "/planned_trip/complete?index="+args[0], nil, &resp)
			if err != nil {
				return err
			}
			return printTrips(cmd.OutOrStdout(), raw, resp.Plans)
		},
	}
}

func printTrips(w io.Writer, raw []byte, trips []dispatch.PlannedTrip) error {
	if opts.asJSON {
		return printJSON(w, raw)
	}
	if len(trips) == 0 {
		fmt.Fprintln(w, "no planned trips")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDEPART\tFROM\tTO\tWINDOW\tORDERS\tDONE")
	for i, t := range trips {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dm\t%d-%d\t%t\n",
			i, t.DepartureTime, t.Origin, t.Destination, t.TimeWindowMinutes, t.MinOrders, t.MaxOrders, t.Completed)
	}
	return tw.Flush()
}
