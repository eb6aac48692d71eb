package main

import (
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <formula>",
	Short: "Show an installed formula's version and keg path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		name := args[0]
		rec, err := inst.GetInstalled(name)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}

		printInfof("%s\n", rec.Name)
		printInfof("  version:     %s\n", rec.Version)
		printInfof("  store key:   %s\n", rec.StoreKey)
		printInfof("  installed:   %s\n", rec.InstalledAt.Format("2006-01-02 15:04:05 MST"))
		printInfof("  keg path:    %s\n", inst.KegPath(rec.Name, rec.Version))
	},
}
