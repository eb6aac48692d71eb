package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareSemver(t *testing.T) {
	require.Equal(t, -1, Compare("1.2.0", "1.10.0"))
	require.Equal(t, 1, Compare("2.0.0", "1.99.0"))
	require.Equal(t, 0, Compare("1.2.3", "1.2.3"))
}

func TestCompareFallsBackToStringCompareForNonSemver(t *testing.T) {
	require.Equal(t, -1, Compare("20230801", "20230802"))
}

func TestSortOrdersAscending(t *testing.T) {
	versions := []string{"1.10.0", "1.2.0", "1.9.0"}
	Sort(versions)
	require.Equal(t, []string{"1.2.0", "1.9.0", "1.10.0"}, versions)
}

func TestLatest(t *testing.T) {
	require.Equal(t, "2.1.0", Latest([]string{"1.0.0", "2.1.0", "2.0.5"}))
	require.Empty(t, Latest(nil))
}
