package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("upload too large")

// StoredFile describes a saved upload.
type StoredFile struct {
	Name string
	Path string
	Size int64
}

// Uploader persists uploaded videos.
type Uploader interface {
	Save(ctx context.Context, originalName string, r io.Reader) (StoredFile, error)
}

type localUploader struct {
	rootDir  string
	maxBytes int64
	suffix   func() string
}

// NewLocalUploader stores files under rootDir. maxBytes <= 0 disables the
// size check.
func NewLocalUploader(rootDir string, maxBytes int64) Uploader {
	return &localUploader{
		rootDir:  rootDir,
		maxBytes: maxBytes,
		suffix:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] },
	}
}

func (u *localUploader) Save(ctx context.Context, originalName string, r io.Reader) (StoredFile, error) {
	if err := os.MkdirAll(u.rootDir, 0o755); err != nil {
		return StoredFile{}, err
	}
	name := SafeName(originalName)
	f, err := os.OpenFile(filepath.Join(u.rootDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), u.suffix(), ext)
		f, err = os.OpenFile(filepath.Join(u.rootDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return StoredFile{}, err
	}
	dst := f.Name()

	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes+1)
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: src})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && u.maxBytes > 0 && n > u.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		return StoredFile{}, err
	}
	abs, _ := filepath.Abs(dst)
	return StoredFile{Name: name, Path: abs, Size: n}, nil
}

// SafeName flattens path separators so the upload always lands in the root
// directory.
func SafeName(original string) string {
	name := strings.TrimSpace(original)
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
