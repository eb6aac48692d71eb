package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zerobrew/zerobrew/internal/zberr"
)

func openTestDB(t *testing.T) (*DB, string, string) {
	t.Helper()
	root := t.TempDir()
	lockDir := root + "/locks"
	d, err := Open(root, lockDir)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, root, lockDir
}

func TestInsertThenGet(t *testing.T) {
	d, _, _ := openTestDB(t)

	rec := Record{
		Name:        "libheif",
		Version:     "2.0.1",
		StoreKey:    "abc123",
		InstalledAt: time.Now(),
	}
	require.NoError(t, d.Insert(rec))

	got, err := d.Get("libheif")
	require.NoError(t, err)
	require.Equal(t, "2.0.1", got.Version)
	require.Equal(t, "abc123", got.StoreKey)
}

func TestGetMissingReturnsNotInstalled(t *testing.T) {
	d, _, _ := openTestDB(t)

	_, err := d.Get("nonexistent")
	require.Error(t, err)

	var notInstalled *zberr.NotInstalled
	require.ErrorAs(t, err, &notInstalled)
}

func TestIsInstalled(t *testing.T) {
	d, _, _ := openTestDB(t)

	ok, err := d.IsInstalled("foo")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.Insert(Record{Name: "foo", Version: "1.0.0", StoreKey: "x", InstalledAt: time.Now()}))

	ok, err = d.IsInstalled("foo")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInsertReplacesExistingVersion(t *testing.T) {
	d, _, _ := openTestDB(t)

	require.NoError(t, d.Insert(Record{Name: "foo", Version: "1.0.0", StoreKey: "x", InstalledAt: time.Now()}))
	require.NoError(t, d.Insert(Record{Name: "foo", Version: "2.0.0", StoreKey: "y", InstalledAt: time.Now()}))

	got, err := d.Get("foo")
	require.NoError(t, err)
	require.Equal(t, "2.0.0", got.Version)

	all, err := d.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRemoveDeletesRecord(t *testing.T) {
	d, _, _ := openTestDB(t)

	require.NoError(t, d.Insert(Record{Name: "foo", Version: "1.0.0", StoreKey: "x", InstalledAt: time.Now()}))
	require.NoError(t, d.Remove("foo"))

	_, err := d.Get("foo")
	require.Error(t, err)
}

func TestRemoveAbsentNameIsNotError(t *testing.T) {
	d, _, _ := openTestDB(t)
	require.NoError(t, d.Remove("nonexistent"))
}

func TestListReturnsAllRecordsSorted(t *testing.T) {
	d, _, _ := openTestDB(t)

	require.NoError(t, d.Insert(Record{Name: "zeta", Version: "1.0.0", StoreKey: "z", InstalledAt: time.Now()}))
	require.NoError(t, d.Insert(Record{Name: "alpha", Version: "1.0.0", StoreKey: "a", InstalledAt: time.Now()}))

	records, err := d.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "alpha", records[0].Name)
	require.Equal(t, "zeta", records[1].Name)
}

func TestSecondOpenOfSameRootFailsFast(t *testing.T) {
	d, root, lockDir := openTestDB(t)
	require.NoError(t, d.Insert(Record{Name: "a", Version: "1.0.0", StoreKey: "x", InstalledAt: time.Now()}))

	_, err := Open(root, lockDir)
	require.Error(t, err)

	var busy *zberr.LockBusy
	require.ErrorAs(t, err, &busy)
}

func TestCloseReleasesLockForNextOpen(t *testing.T) {
	root := t.TempDir()
	lockDir := root + "/locks"

	d1, err := Open(root, lockDir)
	require.NoError(t, err)
	require.NoError(t, d1.Close())

	d2, err := Open(root, lockDir)
	require.NoError(t, err)
	require.NoError(t, d2.Close())
}
