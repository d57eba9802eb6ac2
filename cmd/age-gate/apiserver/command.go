package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/age-gate/internal/business"
	"github.com/openkcm/age-gate/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Age Gate server",
		"Age Gate server handles the provider callbacks and serves the gated site",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
