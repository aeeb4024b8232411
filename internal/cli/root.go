package cli

import (
	"context"
	"fmt"

	"github.com/example/ec-cart-sync/internal/config"
	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/spf13/cobra"
)

// StoreOpener connects a document store backend; store.Open satisfies it
type StoreOpener func(ctx context.Context, backend string, opts store.OpenOptions) (store.DocumentStore, func(), error)

// RootOptions holds global flags and shared dependencies for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	Store  string

	Config    config.Config
	OpenStore StoreOpener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the cartctl root command configured from the environment.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{Config: config.Load(), OpenStore: store.Open})
}

// NewRootCommandWith creates the root command around preset options.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "cartctl - operate the cart sync service",
		Long:  "Operator tooling for ec-cart-sync: schema migrations, shipping quotes, shipment tracking and test tokens.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", opts.Config.DocumentStore, "document store backend (memory|postgres|mongo)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewQuoteCommand(opts))
	cmd.AddCommand(NewTrackCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) openStore(ctx context.Context) (store.DocumentStore, func(), error) {
	return o.OpenStore(ctx, o.Store, store.OpenOptions{
		DatabaseURL:   o.Config.DatabaseURL,
		MongoURI:      o.Config.MongoURI,
		MongoDatabase: o.Config.MongoDatabase,
	})
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
