// Package installer implements dependency resolution and install/
// uninstall/GC orchestration (§4.9) on top of the lower-level
// components (API client, downloader, extractor, store, cellar,
// linker, database).
package installer

import (
	"context"
	"strings"

	"github.com/zerobrew/zerobrew/internal/apiclient"
	"github.com/zerobrew/zerobrew/internal/zberr"
)

// ResolvedFormula is one node of a Plan: a formula along with the
// bottle coordinates for the host's platform tag.
type ResolvedFormula struct {
	Name         string
	Version      string
	Dependencies []string
	BottleURL    string
	BottleSHA256 string
}

// Plan is a reverse-postorder install plan: dependencies appear
// before the formulas that need them, the requested root formula
// last.
type Plan struct {
	Formulas []ResolvedFormula
}

// Resolver discovers a formula's transitive runtime dependency graph
// via the API client and orders it for installation.
type Resolver struct {
	client      *apiclient.Client
	platformTag string
}

// NewResolver creates a Resolver fetching metadata through client for
// the given host platform tag (see internal/platform.DetectTag).
func NewResolver(client *apiclient.Client, platformTag string) *Resolver {
	return &Resolver{client: client, platformTag: platformTag}
}

// Plan performs a depth-first traversal of rootName's runtime
// dependency graph and returns it in reverse-postorder. Revisiting an
// already-resolved name is skipped; revisiting a name already on the
// current traversal stack is a DependencyCycle.
func (r *Resolver) Plan(ctx context.Context, rootName string) (*Plan, error) {
	state := &resolveState{
		visited: make(map[string]bool),
		onStack: make(map[string]bool),
	}

	if err := r.visit(ctx, rootName, state); err != nil {
		return nil, err
	}

	return &Plan{Formulas: state.order}, nil
}

type resolveState struct {
	visited map[string]bool
	onStack map[string]bool
	stack   []string
	order   []ResolvedFormula
}

func (r *Resolver) visit(ctx context.Context, rawName string, state *resolveState) error {
	name, err := normalizeFormulaName(rawName)
	if err != nil {
		return err
	}

	if state.visited[name] {
		return nil
	}
	if state.onStack[name] {
		cycle := append(append([]string{}, state.stack...), name)
		return &zberr.DependencyCycle{Path: cycle}
	}

	state.onStack[name] = true
	state.stack = append(state.stack, name)
	defer func() {
		state.onStack[name] = false
		state.stack = state.stack[:len(state.stack)-1]
	}()

	formula, err := r.client.FetchFormula(ctx, name)
	if err != nil {
		return err
	}

	for _, dep := range formula.Dependencies {
		if err := r.visit(ctx, dep, state); err != nil {
			return err
		}
	}

	bottle, ok := formula.Bottle.Stable.Files[r.platformTag]
	if !ok {
		return &zberr.NoBottleForPlatform{Name: name, Platform: r.platformTag}
	}

	state.visited[name] = true
	state.order = append(state.order, ResolvedFormula{
		Name:         name,
		Version:      formula.Versions.Stable,
		Dependencies: formula.Dependencies,
		BottleURL:    bottle.URL,
		BottleSHA256: bottle.SHA256,
	})

	return nil
}

// FetchLatestVersion returns name's latest stable version per the API,
// independent of resolving its dependency tree. Used by Installer.Outdated
// to compare against what's actually installed.
func (r *Resolver) FetchLatestVersion(ctx context.Context, rawName string) (string, error) {
	name, err := normalizeFormulaName(rawName)
	if err != nil {
		return "", err
	}
	formula, err := r.client.FetchFormula(ctx, name)
	if err != nil {
		return "", err
	}
	return formula.Versions.Stable, nil
}

// normalizeFormulaName unwraps a homebrew/core/<x> tap qualifier and
// rejects any other tap prefix.
func normalizeFormulaName(name string) (string, error) {
	const corePrefix = "homebrew/core/"
	if strings.HasPrefix(name, corePrefix) {
		return strings.TrimPrefix(name, corePrefix), nil
	}
	if strings.Contains(name, "/") {
		return "", &zberr.UnsupportedTap{Name: name}
	}
	return name, nil
}
