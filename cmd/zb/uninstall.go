package main

import (
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <formula>",
	Aliases: []string{"remove"},
	Short:   "Unlink and remove an installed formula's keg",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		name := args[0]
		if err := inst.Uninstall(name); err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		printInfof("==> Uninstalled %s\n", name)
	},
}
