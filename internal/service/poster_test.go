package service

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestPosterStore_SaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	p := &PosterStore{Dir: dir, MaxBytes: 1024}

	url, err := p.Save(bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, PosterURLPrefix))
	assert.True(t, strings.HasSuffix(url, ".png"))

	path := filepath.Join(dir, strings.TrimPrefix(url, PosterURLPrefix))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, p.Remove(url))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// removing twice or foreign urls is a no-op
	assert.NoError(t, p.Remove(url))
	assert.NoError(t, p.Remove("https://cdn.example.com/a.png"))
	assert.NoError(t, p.Remove(PosterURLPrefix+"../etc/passwd"))
}

func TestPosterStore_Rejects(t *testing.T) {
	p := &PosterStore{Dir: t.TempDir(), MaxBytes: 16}

	_, err := p.Save(bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrPosterTooLarge)

	p.MaxBytes = 1024
	_, err = p.Save(strings.NewReader("plain text, not an image"))
	assert.ErrorIs(t, err, ErrPosterType)
}
