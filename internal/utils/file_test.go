package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileExtension(t *testing.T) {
	assert.Equal(t, "jpg", GetFileExtension("a/b/photo.JPG"))
	assert.Equal(t, "", GetFileExtension("README"))
	assert.True(t, IsImageFile("x.webp"))
	assert.False(t, IsImageFile("x.txt"))
}

func TestOutputFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "photo_blur8.jpg"), OutputFilename("in/photo.jpg", "out", "_blur8", ""))
	assert.Equal(t, filepath.Join("out", "photo_blur8.png"), OutputFilename("in/photo.jpg", "out", "_blur8", "png"))
	assert.Equal(t, filepath.Join("out", "raw.jpg"), OutputFilename("raw", "out", "", ""))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureDir(filepath.Join(dir, "nested")))
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", filepath.Join("nested", "c.webp")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "c.webp"),
	}, files)

	assert.True(t, FileExists(filepath.Join(dir, "a.jpg")))
	assert.False(t, FileExists(filepath.Join(dir, "nested")))
	assert.False(t, FileExists(filepath.Join(dir, "missing.jpg")))
}
