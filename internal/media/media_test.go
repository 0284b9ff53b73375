package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")

func TestDisk_StoresImage(t *testing.T) {
	dir := t.TempDir()
	store := NewDisk(dir, "http://cdn.local/media/", 1<<20)

	url, err := store.Store(context.Background(), "lamp.png", pngHeader)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://cdn.local/media/"))
	require.True(t, strings.HasSuffix(url, ".png"))

	written, err := os.ReadFile(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)
}

func TestDisk_RejectsBadInput(t *testing.T) {
	store := NewDisk(t.TempDir(), "", 8)
	ctx := context.Background()

	_, err := store.Store(ctx, "a.png", nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = store.Store(ctx, "a.png", pngHeader)
	assert.ErrorIs(t, err, ErrTooLarge)

	store = NewDisk(t.TempDir(), "", 0)
	_, err = store.Store(ctx, "notes.txt", []byte("plain text, not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
