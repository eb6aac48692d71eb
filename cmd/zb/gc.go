package main

import (
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove cached blobs and store entries not referenced by any installed formula",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		removed, err := inst.GC()
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}

		if len(removed) == 0 {
			printInfo("==> Nothing to remove")
			return
		}
		for _, digest := range removed {
			printInfof("Removed %s\n", digest)
		}
	},
}
