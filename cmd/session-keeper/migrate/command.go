package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/session-keeper/internal/business"
	"github.com/openkcm/session-keeper/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Session Keeper migrations",
		"Applies the database schema migrations to DATABASE_URL or the configured database",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
