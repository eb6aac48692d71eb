package main

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed formulae",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		records, err := inst.ListInstalled()
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}

		for _, rec := range records {
			printInfof("%s %s\n", rec.Name, rec.Version)
		}
	},
}
