package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/age-gate/internal/business"
	"github.com/openkcm/age-gate/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Age Gate migrations",
		"Age Gate migrations create the schema of the sql storage",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
