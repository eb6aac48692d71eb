package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerobrew/zerobrew/internal/installer"
	"github.com/zerobrew/zerobrew/internal/log"
)

var installNoLink bool

var installCmd = &cobra.Command{
	Use:   "install <formula>...",
	Short: "Install one or more formulae and their dependencies",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		inst, closeInstaller, err := buildInstaller(cfg)
		if err != nil {
			printError(err)
			exitWithCode(exitCodeFor(err))
		}
		defer closeInstaller()

		for _, name := range args {
			if err := installOne(inst, name); err != nil {
				printError(err)
				exitWithCode(exitCodeFor(err))
			}
		}
	},
}

func init() {
	installCmd.Flags().BoolVar(&installNoLink, "no-link", false, "Install without linking binaries into the prefix")
}

func installOne(inst *installer.Installer, name string) error {
	plan, err := inst.Plan(globalCtx, name)
	if err != nil {
		return err
	}

	result, err := inst.Execute(globalCtx, plan, !installNoLink, renderProgress)
	if err != nil {
		return err
	}

	for _, n := range result.Installed {
		printInfof("==> Installed %s\n", n)
	}
	for _, n := range result.Skipped {
		log.Default().Debug("already installed at planned version", "formula", n)
	}
	return nil
}

// renderProgress logs installer.Events at INFO level, giving a -v
// user visibility into the download/unpack/link pipeline without
// cluttering the default WARN-level output. Per-chunk DownloadProgress
// events and unrecognized events are logged at DEBUG level instead.
func renderProgress(e installer.Event) {
	logger := log.Default()
	switch ev := e.(type) {
	case installer.DownloadStarted:
		logger.Info("downloading", "formula", ev.Name)
	case installer.DownloadProgress:
		logger.Debug("download progress", "formula", ev.Name, "downloaded", ev.Downloaded, "total", ev.TotalBytes)
	case installer.DownloadCompleted:
		logger.Info("downloaded", "formula", ev.Name)
	case installer.UnpackStarted:
		logger.Info("unpacking", "formula", ev.Name)
	case installer.UnpackCompleted:
		logger.Info("unpacked", "formula", ev.Name)
	case installer.LinkStarted:
		logger.Info("linking", "formula", ev.Name)
	case installer.LinkCompleted:
		logger.Info("linked", "formula", ev.Name)
	case installer.InstallCompleted:
		logger.Info("install complete", "formula", ev.Name)
	default:
		logger.Debug(fmt.Sprintf("unrecognized event %T", ev))
	}
}
