package issue

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/session-keeper/internal/business"
	"github.com/openkcm/session-keeper/internal/cmdutils"
	"github.com/openkcm/session-keeper/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <subject>",
		Short: "Issue a token pair",
		Long:  "Issues an access and refresh token pair for the subject and prints it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issue := func(ctx context.Context, cfg *config.Config) error {
				return business.IssueMain(ctx, cfg, args[0], cmd.OutOrStdout())
			}

			return cmdutils.Run(cmd.Context(), buildInfo, cmdutils.RunAsJob, issue)
		},
	}
}
