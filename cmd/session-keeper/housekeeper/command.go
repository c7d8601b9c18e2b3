package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/session-keeper/internal/business"
	"github.com/openkcm/session-keeper/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Session Keeper Housekeeping job",
		"Session Keeper Housekeeping job purges revoked tokens that have expired from the database",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
