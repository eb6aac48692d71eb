package blob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitThenHasAndPathOf(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)

	digest := "abc123"
	require.False(t, c.Has(digest))

	w, err := c.StartWrite(digest)
	require.NoError(t, err)
	_, err = w.Write([]byte("bottle bytes"))
	require.NoError(t, err)

	path, err := w.Commit()
	require.NoError(t, err)
	require.Equal(t, c.PathOf(digest), path)
	require.True(t, c.Has(digest))

	// tmp file must be gone
	_, err = os.Stat(filepath.Join(root, "cache", "tmp", digest+".part"))
	require.True(t, os.IsNotExist(err))
}

func TestAbortRemovesPartialFile(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)

	digest := "deadbeef"
	w, err := c.StartWrite(digest)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	require.False(t, c.Has(digest))
	_, err = os.Stat(filepath.Join(root, "cache", "tmp", digest+".part"))
	require.True(t, os.IsNotExist(err))
}

func TestStartWriteSecondWriterFailsFast(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)

	digest := "dup"
	w1, err := c.StartWrite(digest)
	require.NoError(t, err)
	defer w1.Abort()

	_, err = c.StartWrite(digest)
	require.ErrorIs(t, err, ErrAlreadyInFlight)
}

func TestCommitIdempotentWhenDestinationExists(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)

	digest := "idempotent"
	w1, err := c.StartWrite(digest)
	require.NoError(t, err)
	_, err = w1.Write([]byte("first"))
	require.NoError(t, err)
	path1, err := w1.Commit()
	require.NoError(t, err)

	// A second writer racing to the same digest, arriving after the
	// first committed, should not clobber the existing blob.
	tmpPath := filepath.Join(root, "cache", "tmp", digest+".part")
	require.NoError(t, os.WriteFile(tmpPath, []byte("second"), 0644))
	w2 := &Writer{cache: c, digest: digest, tmpPath: tmpPath}
	f, err := os.OpenFile(tmpPath, os.O_WRONLY, 0644)
	require.NoError(t, err)
	w2.file = f

	path2, err := w2.Commit()
	require.NoError(t, err)
	require.Equal(t, path1, path2)

	data, err := os.ReadFile(path1)
	require.NoError(t, err)
	require.Equal(t, "first", string(data))
}

func TestDeleteAbsentBlobIsNotError(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)
	require.NoError(t, c.Delete("nonexistent"))
}

func TestListDigests(t *testing.T) {
	root := t.TempDir()
	c, err := New(root)
	require.NoError(t, err)

	for _, d := range []string{"aaa", "bbb"} {
		w, err := c.StartWrite(d)
		require.NoError(t, err)
		_, err = w.Write([]byte(d))
		require.NoError(t, err)
		_, err = w.Commit()
		require.NoError(t, err)
	}

	digests, err := c.ListDigests()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"aaa", "bbb"}, digests)

	require.NoError(t, c.Delete("aaa"))
	digests, err = c.ListDigests()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"bbb"}, digests)
}
