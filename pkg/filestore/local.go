/**
 * @description
 * Local-disk storage for application attachments. Files are written under
 * <root>/<owner>/<field>-<uuid><ext> and addressed by that relative path.
 */
package filestore

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

var allowedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// ErrUnsupportedFileType is returned for uploads with an extension outside the allow list.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// Local stores files below a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Local{root: root}, nil
}

// Save writes content and returns its path relative to the root.
func (l *Local) Save(ctx context.Context, owner, field, filename string, content io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, filename)
	}

	dir := filepath.Join(l.root, safeSegment(owner))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s%s", safeSegment(field), uuid.NewString(), ext)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, readerWithContext(ctx, content)); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return filepath.ToSlash(filepath.Join(safeSegment(owner), name)), nil
}

// Delete removes a stored file. Missing files are not an error.
func (l *Local) Delete(ctx context.Context, path string) error {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if !strings.HasPrefix(full, filepath.Clean(l.root)+string(os.PathSeparator)) {
		return fmt.Errorf("path %q escapes upload directory", path)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Open returns a stored file for reading.
func (l *Local) Open(path string) (*os.File, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if !strings.HasPrefix(full, filepath.Clean(l.root)+string(os.PathSeparator)) {
		return nil, os.ErrNotExist
	}
	return os.Open(full)
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
