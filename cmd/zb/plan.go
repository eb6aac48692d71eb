package main

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <formula>",
	Short: "Resolve and print a formula's dependency-ordered install plan without installing it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		plan, err := inst.Plan(globalCtx, args[0])
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}

		for _, f := range plan.Formulas {
			printInfof("%s %s\n", f.Name, f.Version)
		}
	},
}
