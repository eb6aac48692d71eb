package main

import (
	"github.com/spf13/cobra"
)

var outdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "List installed formulae with a newer version available",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		outdated, err := inst.Outdated(globalCtx)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}

		if len(outdated) == 0 {
			printInfo("==> Everything up to date")
			return
		}

		for _, rec := range outdated {
			printInfof("%s %s < %s\n", rec.Name, rec.InstalledVersion, rec.LatestVersion)
		}
	},
}
