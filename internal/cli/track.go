package cli

import (
	"fmt"
	"io"

	"github.com/example/ec-cart-sync/internal/domain/logistics"
	"github.com/spf13/cobra"
)

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track <tracking-number>",
		Short: "Show a shipment and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, closeStore, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			sh, err := logistics.NewService(ds, nil).Track(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printShipment(rootOpts, cmd, sh)
		},
	}
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	var location, description string

	cmd := &cobra.Command{
		Use:   "advance <tracking-number>",
		Short: "Move a shipment to its next status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, closeStore, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			sh, err := logistics.NewService(ds, nil).AdvanceShipment(cmd.Context(), args[0], location, description)
			if err != nil {
				return err
			}
			return printShipment(rootOpts, cmd, sh)
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "where the shipment is now (defaults to its last location)")
	cmd.Flags().StringVar(&description, "description", "", "history entry text")

	return cmd
}

func printShipment(rootOpts *RootOptions, cmd *cobra.Command, sh *logistics.Shipment) error {
	return newFormatter(rootOpts, cmd.OutOrStdout()).Result(sh, func(w io.Writer) error {
		fmt.Fprintf(w, "%s via %s: %s at %s (ETA %s)\n",
			sh.TrackingNumber, sh.Courier, sh.Status, sh.CurrentLocation, sh.EstimatedDelivery.Format("2006-01-02"))
		for _, h := range sh.History {
			fmt.Fprintf(w, "  %s  %-16s  %-12s  %s\n", h.Timestamp.Format("2006-01-02 15:04"), h.Status, h.Location, h.Description)
		}
		return nil
	})
}
