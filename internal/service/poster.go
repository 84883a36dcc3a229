package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// PosterURLPrefix is where uploaded posters are served from.
const PosterURLPrefix = "/uploads/"

var (
	ErrPosterTooLarge = errors.New("poster too large")
	ErrPosterType     = errors.New("poster must be a jpeg, png, webp or gif image")
)

// posterExt maps accepted image types to the extension files are stored with.
var posterExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// PosterStore keeps show posters on local disk under random names.
type PosterStore struct {
	Dir      string
	MaxBytes int64
}

// Save stores an image read from r and returns its public URL. The type is
// sniffed from the content, the client supplied name and header are ignored.
func (p *PosterStore) Save(r io.Reader) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(r, p.MaxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(buf)) > p.MaxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrPosterTooLarge, p.MaxBytes)
	}
	mt := mimetype.Detect(buf)
	ext := ""
	for m := mt; m != nil; m = m.Parent() {
		if e, ok := posterExt[m.String()]; ok {
			ext = e
			break
		}
	}
	if ext == "" {
		return "", ErrPosterType
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(p.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, bytes.NewReader(buf)); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return PosterURLPrefix + name, nil
}

// Remove deletes a poster previously returned by Save. URLs that do not
// point into the store are ignored.
func (p *PosterStore) Remove(url string) error {
	if !strings.HasPrefix(url, PosterURLPrefix) {
		return nil
	}
	name := strings.TrimPrefix(url, PosterURLPrefix)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil
	}
	err := os.Remove(filepath.Join(p.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
