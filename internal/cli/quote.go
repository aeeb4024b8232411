package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/ec-cart-sync/internal/domain/logistics"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type quoteOptions struct {
	from     string
	to       string
	weight   string
	distance int64
}

// NewQuoteCommand creates the quote command.
func NewQuoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &quoteOptions{}

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a parcel with every courier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "Manila", "origin city")
	cmd.Flags().StringVar(&opts.to, "to", "", "destination city")
	cmd.Flags().StringVar(&opts.weight, "weight", "", "parcel weight in kg")
	cmd.Flags().Int64Var(&opts.distance, "distance", 100, "road distance in km")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("weight")

	return cmd
}

func runQuote(rootOpts *RootOptions, opts *quoteOptions, cmd *cobra.Command) error {
	weight, err := decimal.NewFromString(opts.weight)
	if err != nil {
		return fmt.Errorf("invalid weight %q: %w", opts.weight, err)
	}
	if opts.distance < 0 {
		return fmt.Errorf("invalid distance %d", opts.distance)
	}

	// quoting never touches the shipment store
	svc := logistics.NewService(nil, logistics.FixedDistance(decimal.NewFromInt(opts.distance)))
	rates, err := svc.Quote(cmd.Context(), logistics.Address{City: opts.from}, logistics.Address{City: opts.to}, weight)
	if err != nil {
		return err
	}

	return newFormatter(rootOpts, cmd.OutOrStdout()).Result(rates, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "COURIER\tBASE\tWEIGHT\tDISTANCE\tTOTAL\tDAYS")
		for _, r := range rates {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", r.Courier, r.BaseRate, r.WeightRate, r.DistanceRate, r.Total, r.EstimatedDays)
		}
		return tw.Flush()
	})
}
