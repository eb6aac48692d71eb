// Package config resolves zerobrew's environment-driven tunables:
// the root/prefix directory layout (§6 of the design), the API
// endpoint and timeout, the download concurrency limit, and the
// formula-metadata cache TTL. Every duration/size knob read from the
// environment is parsed with a default, clamped to a sane range, and
// warns to stderr rather than failing outright on a bad value. Values
// from zb.toml are applied as given, without clamping, and a zb.toml
// duration that does not parse is ignored without a warning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// EnvRoot overrides the default root directory (cache/store/cellar/db).
	EnvRoot = "ZB_ROOT"

	// EnvPrefix overrides the default prefix directory (bin/ symlinks).
	EnvPrefix = "ZB_PREFIX"

	// EnvAPIBase overrides the formula metadata endpoint base URL.
	EnvAPIBase = "ZB_API_BASE"

	// EnvAPITimeout configures the HTTP client timeout used by the API
	// client and downloader.
	EnvAPITimeout = "ZB_API_TIMEOUT"

	// EnvConcurrency configures the parallel downloader's permit count.
	EnvConcurrency = "ZB_CONCURRENCY"

	// EnvAPICacheTTL configures the formula JSON cache freshness window.
	EnvAPICacheTTL = "ZB_API_CACHE_TTL"

	// EnvQuiet, EnvVerbose, EnvDebug are verbosity fallbacks consulted
	// when the corresponding CLI flag is absent.
	EnvQuiet   = "ZB_QUIET"
	EnvVerbose = "ZB_VERBOSE"
	EnvDebug   = "ZB_DEBUG"

	// DefaultAPIBase is the public Homebrew-compatible metadata endpoint.
	DefaultAPIBase = "https://formulae.brew.sh/api/formula"

	// DefaultAPITimeout is the default HTTP client timeout (30s).
	DefaultAPITimeout = 30 * time.Second

	// DefaultConcurrency is the default parallel download permit count.
	DefaultConcurrency = 48

	// DefaultAPICacheTTL is the default formula JSON cache freshness window.
	DefaultAPICacheTTL = 1 * time.Hour
)

// Config holds zerobrew's resolved configuration.
type Config struct {
	Root        string // cache/, store/, cellar/, db/, locks/ live here
	Prefix      string // prefix/bin holds the installed symlinks
	APIBase     string
	APITimeout  time.Duration
	Concurrency int
	APICacheTTL time.Duration
}

// fileOverride is the shape of an optional zb.toml override file.
type fileOverride struct {
	Root        string `toml:"root"`
	Prefix      string `toml:"prefix"`
	APIBase     string `toml:"api_base"`
	APITimeout  string `toml:"api_timeout"`
	Concurrency int    `toml:"concurrency"`
	APICacheTTL string `toml:"api_cache_ttl"`
}

// Load resolves configuration from defaults, an optional zb.toml file
// under the root directory, and environment variables, in that order
// of increasing precedence.
func Load() (*Config, error) {
	root, err := defaultRoot()
	if err != nil {
		return nil, fmt.Errorf("resolving default root: %w", err)
	}

	cfg := &Config{
		Root:        root,
		Prefix:      defaultPrefix(),
		APIBase:     DefaultAPIBase,
		APITimeout:  DefaultAPITimeout,
		Concurrency: DefaultConcurrency,
		APICacheTTL: DefaultAPICacheTTL,
	}

	if override, ok := os.LookupEnv(EnvRoot); ok && override != "" {
		cfg.Root = override
	}

	cfg.applyFileOverride(filepath.Join(cfg.Root, "zb.toml"))

	if override, ok := os.LookupEnv(EnvRoot); ok && override != "" {
		cfg.Root = override
	}
	if v, ok := os.LookupEnv(EnvPrefix); ok && v != "" {
		cfg.Prefix = v
	}
	if v, ok := os.LookupEnv(EnvAPIBase); ok && v != "" {
		cfg.APIBase = v
	}
	cfg.APITimeout = getDuration(EnvAPITimeout, cfg.APITimeout, 1*time.Second, 5*time.Minute)
	cfg.Concurrency = getInt(EnvConcurrency, cfg.Concurrency, 1, 256)
	cfg.APICacheTTL = getDuration(EnvAPICacheTTL, cfg.APICacheTTL, 1*time.Minute, 24*time.Hour)

	return cfg, nil
}

// applyFileOverride merges an optional zb.toml into cfg. A missing
// file is not an error; a malformed one is reported to stderr and
// otherwise ignored so a bad local file can never block startup.
func (c *Config) applyFileOverride(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var ov fileOverride
	if _, err := toml.Decode(string(data), &ov); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring malformed %s: %v\n", path, err)
		return
	}

	if ov.Root != "" {
		c.Root = ov.Root
	}
	if ov.Prefix != "" {
		c.Prefix = ov.Prefix
	}
	if ov.APIBase != "" {
		c.APIBase = ov.APIBase
	}
	if ov.APITimeout != "" {
		if d, err := time.ParseDuration(ov.APITimeout); err == nil {
			c.APITimeout = d
		}
	}
	if ov.Concurrency > 0 {
		c.Concurrency = ov.Concurrency
	}
	if ov.APICacheTTL != "" {
		if d, err := time.ParseDuration(ov.APICacheTTL); err == nil {
			c.APICacheTTL = d
		}
	}
}

func defaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".zerobrew"), nil
}

// defaultPrefix mirrors real Homebrew's own default-prefix convention
// as zerobrew's own default; it has no interaction with an actual
// Homebrew installation on the host.
func defaultPrefix() string {
	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "/opt/homebrew"
		}
		return "/usr/local"
	default:
		return "/home/linuxbrew/.linuxbrew"
	}
}

// getDuration reads a duration env var, clamping it into [min, max]
// and warning to stderr on an invalid or out-of-range value.
func getDuration(envVar string, def, min, max time.Duration) time.Duration {
	envValue := os.Getenv(envVar)
	if envValue == "" {
		return def
	}

	d, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n", envVar, envValue, def)
		return def
	}
	if d < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum %v\n", envVar, d, min)
		return min
	}
	if d > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum %v\n", envVar, d, max)
		return max
	}
	return d
}

// getInt reads an integer env var, clamping it into [min, max] and
// warning to stderr on an invalid or out-of-range value.
func getInt(envVar string, def, min, max int) int {
	envValue := os.Getenv(envVar)
	if envValue == "" {
		return def
	}

	n, err := strconv.Atoi(strings.TrimSpace(envValue))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %d\n", envVar, envValue, def)
		return def
	}
	if n < min {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%d), using minimum %d\n", envVar, n, min)
		return min
	}
	if n > max {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d), using maximum %d\n", envVar, n, max)
		return max
	}
	return n
}

// EnsureDirectories creates the directory layout described in §6
// under Root (cache/{api,blobs,tmp}, store/tmp, cellar, db, locks).
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Join(c.Root, "cache", "api"),
		filepath.Join(c.Root, "cache", "blobs"),
		filepath.Join(c.Root, "cache", "tmp"),
		filepath.Join(c.Root, "store", "tmp"),
		filepath.Join(c.Root, "cellar"),
		filepath.Join(c.Root, "db"),
		filepath.Join(c.Root, "locks"),
		filepath.Join(c.Prefix, "bin"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}
