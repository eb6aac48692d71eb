package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zerobrew/zerobrew/internal/apiclient"
	"github.com/zerobrew/zerobrew/internal/blob"
	"github.com/zerobrew/zerobrew/internal/cellar"
	"github.com/zerobrew/zerobrew/internal/config"
	"github.com/zerobrew/zerobrew/internal/db"
	"github.com/zerobrew/zerobrew/internal/download"
	"github.com/zerobrew/zerobrew/internal/httputil"
	"github.com/zerobrew/zerobrew/internal/installer"
	"github.com/zerobrew/zerobrew/internal/linker"
	"github.com/zerobrew/zerobrew/internal/log"
	"github.com/zerobrew/zerobrew/internal/paralleldownload"
	"github.com/zerobrew/zerobrew/internal/platform"
	"github.com/zerobrew/zerobrew/internal/store"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// printInfo prints a user-facing result line unless quiet mode is enabled.
func printInfo(a ...any) {
	if !quietFlag {
		fmt.Println(a...)
	}
}

// printInfof is the formatted counterpart to printInfo.
func printInfof(format string, a ...any) {
	if !quietFlag {
		fmt.Printf(format, a...)
	}
}

// printError prints err to stderr.
func printError(err error) {
	fmt.Fprintln(os.Stderr, err)
}

// exitCodeFor maps the zberr taxonomy to an exit code, so a caller
// scripting against zb can branch on failure class without parsing
// stderr.
func exitCodeFor(err error) int {
	var missing *zberr.MissingFormula
	var tap *zberr.UnsupportedTap
	var network *zberr.NetworkFailure
	var checksum *zberr.ChecksumMismatch
	var cycle *zberr.DependencyCycle
	var noBottle *zberr.NoBottleForPlatform
	var notInstalled *zberr.NotInstalled

	switch {
	case errors.As(err, &missing):
		return ExitMissingFormula
	case errors.As(err, &tap):
		return ExitUnsupportedTap
	case errors.As(err, &network):
		return ExitNetwork
	case errors.As(err, &checksum):
		return ExitChecksumMismatch
	case errors.As(err, &cycle), errors.As(err, &noBottle):
		return ExitDependencyFailed
	case errors.As(err, &notInstalled):
		return ExitUsage
	default:
		return ExitInstallFailed
	}
}

// buildInstaller wires an installer.Installer from cfg, detecting the
// host's platform tag. The returned close func releases the
// database's writer lock and must be called before the process exits.
func buildInstaller(cfg *config.Config) (*installer.Installer, func() error, error) {
	tag, err := platform.DetectTag()
	if err != nil {
		return nil, nil, &zberr.ExecutionError{Message: "detecting host platform", Err: err}
	}
	log.Default().Debug("detected platform tag", "tag", tag)

	httpClient := httputil.NewSecureClient(httputil.ClientOptions{Timeout: cfg.APITimeout})

	blobCache, err := blob.New(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	single := download.New(blobCache, httpClient)
	parallel := paralleldownload.New(single, cfg.Concurrency)

	st, err := store.New(storeDir(cfg))
	if err != nil {
		return nil, nil, err
	}
	cel, err := cellar.New(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	lk, err := linker.New(cfg.Prefix, cel)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.Root, locksDir(cfg))
	if err != nil {
		return nil, nil, err
	}

	client := apiclient.New(cfg.APIBase, cfg.Root, apiclient.WithHTTPClient(httpClient), apiclient.WithCacheTTL(cfg.APICacheTTL))
	resolver := installer.NewResolver(client, tag)

	inst := installer.New(resolver, parallel, blobCache, st, cel, lk, database)
	return inst, database.Close, nil
}

func storeDir(cfg *config.Config) string { return filepath.Join(cfg.Root, "store") }
func locksDir(cfg *config.Config) string { return filepath.Join(cfg.Root, "locks") }
