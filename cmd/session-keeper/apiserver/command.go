package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/session-keeper/internal/business"
	"github.com/openkcm/session-keeper/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Session Keeper API server",
		"Session Keeper API server hosts the token refresh endpoint, the health probes and the protected routes",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
