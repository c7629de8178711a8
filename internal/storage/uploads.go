// Package storage keeps uploaded files on local disk under the directory
// served at /uploads.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrUnsupportedMediaType is returned when the sniffed content or the file
// extension falls outside the accepted set.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Policy is the set of accepted content types mapped to the extensions a
// client may use for them.
type Policy map[string][]string

var (
	// Images accepts the avatar formats.
	Images = Policy{
		"image/jpeg": {".jpg", ".jpeg"},
		"image/png":  {".png"},
		"image/gif":  {".gif"},
	}
	// ImagesAndPDF accepts general attachments.
	ImagesAndPDF = Policy{
		"image/jpeg":      {".jpg", ".jpeg"},
		"image/png":       {".png"},
		"image/gif":       {".gif"},
		"application/pdf": {".pdf"},
	}
)

// Uploads saves files to Dir and reports their public path.
type Uploads struct {
	Dir    string
	Prefix string // URL path the directory is served under
	now    func() time.Time
}

// NewUploads makes sure dir exists and returns a store rooted there.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{Dir: dir, Prefix: "/uploads", now: time.Now}, nil
}

// Save copies fh into the upload directory as <unixnano>-<uuid><ext> after
// checking both the sniffed content type and the extension against p.  It
// returns the public path, e.g. /uploads/1700000000-....png.
func (u *Uploads) Save(fh *multipart.FileHeader, p Policy) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("sniff upload: %w", err)
	}
	if !p.allows(mt, ext) {
		return "", ErrUnsupportedMediaType
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d-%s%s", u.now().UnixNano(), uuid.NewString(), ext)
	dst, err := os.OpenFile(filepath.Join(u.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return u.Prefix + "/" + name, nil
}

func (p Policy) allows(mt *mimetype.MIME, ext string) bool {
	for m := mt; m != nil; m = m.Parent() {
		exts, ok := p[m.String()]
		if !ok {
			continue
		}
		for _, e := range exts {
			if e == ext {
				return true
			}
		}
		return false
	}
	return false
}
