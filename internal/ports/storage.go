package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// For localfs this is the object key itself.
	// For gdrive it is the Drive fileId.
	ObjectKey string
	Size      int64
}

// StorageProvider publishes finished metatiles (localfs, gdrive).
// PutObject must never leave a partially written object visible under
// ObjectKey.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error
}
