// Package version provides semver-aware comparison and sorting for
// formula versions, following the conventions already used to rank
// fetched Homebrew metadata.
package version

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Compare returns -1, 0, or 1 as a compares before, equal to, or after
// b. Versions that fail to parse as semver fall back to a plain
// string comparison, since some formula versions (e.g. "20230801")
// aren't valid semver.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sort orders versions ascending, using Compare.
func Sort(versions []string) {
	sort.Slice(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}

// Latest returns the greatest version in versions, or "" if versions
// is empty.
func Latest(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}
