package localfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/ports"
)

func TestPutGetDelete(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	ctx := context.Background()

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey: "osm/2/0/0/0/0/0.meta",
		Reader:    strings.NewReader("META"),
		Size:      4,
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), out.Size)

	st, err := os.Stat(filepath.Join(root, "osm", "2", "0", "0", "0", "0", "0.meta"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(FileMode), st.Mode().Perm())

	rc, size, err := fs.GetObject(ctx, "osm/2/0/0/0/0/0.meta")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "META", string(data))
	require.Equal(t, int64(4), size)

	require.NoError(t, fs.DeleteObject(ctx, "osm/2/0/0/0/0/0.meta"))
	_, _, err = fs.GetObject(ctx, "osm/2/0/0/0/0/0.meta")
	require.True(t, errors.IsCode(err, errors.CodeFilesystem))
}

func TestPutReplacesExisting(t *testing.T) {
	fs := New(t.TempDir())
	ctx := context.Background()

	for _, body := range []string{"first version", "v2"} {
		_, err := fs.PutObject(ctx, ports.PutObjectInput{ObjectKey: "a/b.meta", Reader: strings.NewReader(body)})
		require.NoError(t, err)
	}

	rc, _, err := fs.GetObject(ctx, "a/b.meta")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	r.n--
	p[0] = 'x'
	return 1, nil
}

func TestPutFailureLeavesNothingBehind(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	ctx := context.Background()

	_, err := fs.PutObject(ctx, ports.PutObjectInput{ObjectKey: "osm/x.meta", Reader: bytes.NewReader([]byte("old"))})
	require.NoError(t, err)

	_, err = fs.PutObject(ctx, ports.PutObjectInput{ObjectKey: "osm/x.meta", Reader: &failingReader{n: 10}})
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.CodeFilesystem))

	entries, err := os.ReadDir(filepath.Join(root, "osm"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")

	data, err := os.ReadFile(filepath.Join(root, "osm", "x.meta"))
	require.NoError(t, err)
	require.Equal(t, "old", string(data))
}

func TestPathRejectsEscapes(t *testing.T) {
	fs := New(t.TempDir())
	for _, key := range []string{"", "../etc/passwd", "/abs/path", "a/../../b"} {
		_, err := fs.Path(key)
		require.Error(t, err, "key %q", key)
	}
	p, err := fs.Path("osm/./1.meta")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(fs.Root(), "osm", "1.meta"), p)
}
