package call

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-keeper/internal/business"
	"github.com/openkcm/session-keeper/internal/cmdutils"
	"github.com/openkcm/session-keeper/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var opts business.CallOptions

	cmd := &cobra.Command{
		Use:   "call <url>",
		Short: "Call a protected endpoint",
		Long:  "Performs an authenticated GET, refreshing the access token once if the call is rejected, and prints the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.URL = args[0]
			call := func(ctx context.Context, cfg *config.Config) error {
				return business.CallMain(ctx, cfg, opts, cmd.OutOrStdout())
			}

			return cmdutils.Run(cmd.Context(), buildInfo, cmdutils.RunAsJob, call)
		},
	}

	cmd.Flags().StringVar(&opts.AccessToken, "access-token", "", "access token to start with")
	cmd.Flags().StringVar(&opts.RefreshToken, "refresh-token", "", "refresh token used when the access token is rejected")
	cmd.Flags().StringVar(&opts.SessionID, "session-id", "", "id of a stored session to use and update")
	cmd.Flags().StringVar(&opts.RefreshURL, "refresh-url", "", "refresh endpoint, defaults to auth.refreshURL")

	return cmd
}
