// Package platform detects the host's Homebrew-style bottle platform
// tag (e.g. "arm64_sonoma", "x86_64_linux"), the string formula
// metadata keys its bottle file map by (§3, §6).
package platform

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// macOSCodenames maps a macOS major version number to the marketing
// codename Homebrew uses in its bottle tags. Versions newer than the
// last known entry fall back to the bare numeric string (§6) rather
// than failing outright, so a newly released macOS doesn't break tag
// detection before this table is updated.
var macOSCodenames = map[int]string{
	11: "big_sur",
	12: "monterey",
	13: "ventura",
	14: "sonoma",
	15: "sequoia",
	26: "tahoe",
}

// DetectTag returns the host's platform tag, constructed from the
// architecture and (on macOS) the OS codename, or just the
// architecture and "linux" on Linux.
func DetectTag() (string, error) {
	arch, err := hostArch()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		codename, err := macOSCodename()
		if err != nil {
			return "", err
		}
		return arch + "_" + codename, nil
	case "linux":
		return arch + "_linux", nil
	default:
		return "", fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

// hostArch maps runtime.GOARCH to the architecture token Homebrew
// uses in bottle tags.
func hostArch() (string, error) {
	switch runtime.GOARCH {
	case "arm64":
		return "arm64", nil
	case "amd64":
		return "x86_64", nil
	default:
		return "", fmt.Errorf("unsupported architecture %s", runtime.GOARCH)
	}
}

// macOSCodename shells out to sw_vers, the standard way to query the
// running macOS marketing version, and maps its major version to a
// Homebrew-style codename.
func macOSCodename() (string, error) {
	out, err := exec.Command("sw_vers", "-productVersion").Output()
	if err != nil {
		return "", fmt.Errorf("running sw_vers: %w", err)
	}

	version := strings.TrimSpace(string(bytes.TrimSpace(out)))
	major, _, _ := strings.Cut(version, ".")
	majorNum, err := strconv.Atoi(major)
	if err != nil {
		return "", fmt.Errorf("parsing macOS version %q: %w", version, err)
	}

	if codename, ok := macOSCodenames[majorNum]; ok {
		return codename, nil
	}
	return version, nil
}
