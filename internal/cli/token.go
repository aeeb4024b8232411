package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/example/ec-cart-sync/internal/auth"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	user   string
	email  string
	role   string
	secret string
	expiry time.Duration
}

type tokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		Long: `Issue a signed access token accepted by the API server, for local
testing and operator access. The signing secret defaults to JWT_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.role != auth.RoleCustomer && opts.role != auth.RoleAdmin {
				return fmt.Errorf("invalid role %q: must be %s or %s", opts.role, auth.RoleCustomer, auth.RoleAdmin)
			}
			tokens, err := auth.NewTokenService(opts.secret, opts.expiry)
			if err != nil {
				return err
			}
			token, expiresAt, err := tokens.Issue(auth.Identity{UserID: opts.user, Email: opts.email, Role: opts.role})
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			result := tokenResult{Token: token, ExpiresAt: expiresAt}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Result(result, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.user, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&opts.email, "email", "", "user email")
	cmd.Flags().StringVar(&opts.role, "role", auth.RoleCustomer, "role (customer|admin)")
	cmd.Flags().StringVar(&opts.secret, "secret", rootOpts.Config.JWTSecret, "signing secret")
	cmd.Flags().DurationVar(&opts.expiry, "expiry", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
