package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/age-gate/internal/business"
	"github.com/openkcm/age-gate/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Age Gate Housekeeping job",
		"Age Gate Housekeeping job purges expired verifications and pending authorization requests from the sql storage",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
