package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/ports"
)

// FileMode is the permission of published objects.
const FileMode = 0o644

// LocalFS implements ports.StorageProvider using the local filesystem.
// It stores objects under a configured root directory. Objects are written
// to a temporary file next to their destination and renamed into place, so
// readers see either the previous object or the complete new one.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root returns the directory objects are stored under.
func (l *LocalFS) Root() string { return l.root }

// Path returns the filesystem path of objectKey.
func (l *LocalFS) Path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.New(errors.CodeFilesystem, "object_key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.CodeFilesystem, "object key escapes storage root: %s", objectKey)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.Path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	op := "localfs.put " + in.ObjectKey

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "create directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "create temp file")
	}
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "write")
	}
	if in.Size > 0 && n != in.Size {
		return ports.PutObjectOutput{}, errors.Newf(errors.CodeFilesystem, "short write: %d of %d bytes", n, in.Size)
	}
	if err := ctx.Err(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "cancelled")
	}
	if err := tmp.Sync(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "sync")
	}
	if err := tmp.Chmod(FileMode); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "chmod")
	}
	if err := tmp.Close(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "close")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeFilesystem, op, "rename")
	}
	published = true

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, int64, error) {
	p, err := l.Path(objectKey)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.CodeFilesystem, "localfs.get "+objectKey, "open")
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, errors.WrapWithCode(err, errors.CodeFilesystem, "localfs.get "+objectKey, "stat")
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, errors.New(errors.CodeFilesystem, fmt.Sprintf("%s is a directory", objectKey))
	}
	return f, st.Size(), nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.Path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return errors.WrapWithCode(err, errors.CodeFilesystem, "localfs.delete "+objectKey, "remove")
	}
	return nil
}
