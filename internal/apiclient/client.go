// Package apiclient fetches and caches formula metadata from a
// Homebrew-compatible JSON endpoint (§4.2).
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zerobrew/zerobrew/internal/httputil"
	"github.com/zerobrew/zerobrew/internal/log"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// maxResponseSize bounds formula JSON bodies against a misbehaving or
// compromised endpoint.
const maxResponseSize = 1 * 1024 * 1024

// BottleFile is a single platform tag's bottle reference.
type BottleFile struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// Formula is the subset of Homebrew formula metadata this installer
// understands (§3). Unknown JSON fields are ignored by the decoder.
type Formula struct {
	Name     string `json:"name"`
	Versions struct {
		Stable string `json:"stable"`
	} `json:"versions"`
	Dependencies []string `json:"dependencies"`
	Bottle       struct {
		Stable struct {
			Files map[string]BottleFile `json:"files"`
		} `json:"stable"`
	} `json:"bottle"`
}

// Client fetches formula metadata and maintains an on-disk cache.
type Client struct {
	baseURL    string
	cacheDir   string
	httpClient *http.Client
	cacheTTL   time.Duration
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithCacheTTL sets the client's cache freshness window. FetchFormula
// does not consult it: a failed network fetch falls back to any cached
// copy, whatever its age.
func WithCacheTTL(d time.Duration) Option {
	return func(cl *Client) { cl.cacheTTL = d }
}

// WithLogger overrides the client's logger. Defaults to log.Default().
func WithLogger(l log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client against baseURL (e.g.
// "https://formulae.brew.sh/api/formula"), caching responses under
// cacheDir/cache/api.
func New(baseURL, cacheDir string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: filepath.Join(cacheDir, "cache", "api"),
		httpClient: httputil.NewSecureClient(httputil.ClientOptions{
			Timeout: 30 * time.Second,
		}),
		cacheTTL: 1 * time.Hour,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchFormula fetches a formula's metadata, preferring a live
// network fetch but falling back to any cached copy (regardless of
// its TTL) when the network fails. A successful fetch always
// refreshes the cache.
func (c *Client) FetchFormula(ctx context.Context, name string) (*Formula, error) {
	if !isValidFormulaName(name) {
		return nil, &zberr.MissingFormula{Name: name}
	}

	formula, fetchErr := c.fetchFromNetwork(ctx, name)
	if fetchErr == nil {
		if err := c.cacheRaw(name, formula); err != nil {
			c.logger.Warn("failed to cache formula response", "name", name, "error", err)
		}
		return formula, nil
	}

	if isMissingFormula(fetchErr) {
		return nil, fetchErr
	}

	if cached, ok := c.readCache(name); ok {
		c.logger.Warn("using stale cached formula after network failure", "name", name, "error", fetchErr)
		return cached, nil
	}

	return nil, fetchErr
}

func isMissingFormula(err error) bool {
	_, ok := err.(*zberr.MissingFormula)
	return ok
}

func (c *Client) fetchFromNetwork(ctx context.Context, name string) (*Formula, error) {
	u, err := url.Parse(c.baseURL + "/" + name + ".json")
	if err != nil {
		return nil, &zberr.NetworkFailure{Message: "constructing formula URL", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &zberr.NetworkFailure{Message: "constructing request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &zberr.NetworkFailure{Message: fmt.Sprintf("fetching formula %s", name), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &zberr.MissingFormula{Name: name}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &zberr.NetworkFailure{Message: fmt.Sprintf("formula %s: unexpected status %d", name, resp.StatusCode)}
	}

	limited := io.LimitReader(resp.Body, maxResponseSize)
	var formula Formula
	if err := json.NewDecoder(limited).Decode(&formula); err != nil {
		return nil, &zberr.NetworkFailure{Message: fmt.Sprintf("parsing formula %s", name), Err: err}
	}

	return &formula, nil
}

func (c *Client) cachePath(name string) string {
	return filepath.Join(c.cacheDir, name+".json")
}

func (c *Client) cacheRaw(name string, formula *Formula) error {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(formula)
	if err != nil {
		return err
	}
	return os.WriteFile(c.cachePath(name), data, 0644)
}

func (c *Client) readCache(name string) (*Formula, bool) {
	data, err := os.ReadFile(c.cachePath(name))
	if err != nil {
		return nil, false
	}
	var formula Formula
	if err := json.Unmarshal(data, &formula); err != nil {
		return nil, false
	}
	return &formula, true
}

// isValidFormulaName rejects names that could escape the intended
// API path or local cache path (path separators, "..", a leading
// hyphen that could be mistaken for a flag by a shelled-out caller).
func isValidFormulaName(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, "-") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '@' || r == '.':
		default:
			return false
		}
	}
	return true
}
