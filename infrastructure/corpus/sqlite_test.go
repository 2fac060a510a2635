package corpus

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huihuang/mdaqa/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorePutLookup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "2101.00001", "stored paper text"))

	content, err := store.Lookup(ctx, "2101.00001")
	require.NoError(t, err)
	assert.Equal(t, "stored paper text", content)

	_, err = store.Lookup(ctx, "9999.00000")
	assert.ErrorIs(t, err, domain.ErrPaperNotFound)
}

func TestSQLiteStorePutReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "2101.00001", "first"))
	require.NoError(t, store.Put(ctx, "2101.00001", "second"))

	content, err := store.Lookup(ctx, "2101.00001")
	require.NoError(t, err)
	assert.Equal(t, "second", content)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStoreImportDir(t *testing.T) {
	dir := t.TempDir()
	writePaper(t, dir, "2101.00001v1.txt", "Usable paper one.\n\nWith a blank line.\n")
	writePaper(t, dir, "2101.00002v2.txt", "Usable paper two.\n")
	writePaper(t, dir, "2101.00003v1.txt", `\section{Intro} failed extraction`)
	writePaper(t, dir, "notes.md", "not a corpus file")
	writePaper(t, dir, "README.txt", "no version suffix")
	writePaper(t, dir, "2101.00004v1.txt", strings.Repeat("oversized. ", 1000))

	store := openTestStore(t)
	ctx := context.Background()

	imported, err := store.ImportDir(ctx, dir, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	content, err := store.Lookup(ctx, "2101.00001")
	require.NoError(t, err)
	assert.Equal(t, "Usable paper one.\nWith a blank line.\n", content)

	_, err = store.Lookup(ctx, "2101.00003")
	assert.ErrorIs(t, err, domain.ErrPaperNotFound)
	_, err = store.Lookup(ctx, "2101.00004")
	assert.ErrorIs(t, err, domain.ErrPaperNotFound)
}
