// Package gdrive mirrors published metatiles into a Google Drive folder.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/ports"
)

// objectKeyProperty holds the storage key on each Drive file, since Drive
// has no paths.
const objectKeyProperty = "metatile_key"

const contentType = "application/octet-stream"

// Client implements ports.StorageProvider backed by Google Drive. Objects
// are Drive files in one folder, found again through the objectKeyProperty
// app property. Putting an existing key replaces the file content.
type Client struct {
	srv      *drive.Service
	folderID string
}

var _ ports.StorageProvider = (*Client)(nil)

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.New(errors.CodeFilesystem, "object_key is required")
	}
	op := "gdrive.put " + in.ObjectKey
	ct := in.ContentType
	if ct == "" {
		ct = contentType
	}

	existing, err := c.find(ctx, in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	// Drive swaps file content only once the upload completes.
	var f *drive.File
	if existing != nil {
		f, err = c.srv.Files.Update(existing.Id, &drive.File{}).
			Media(in.Reader, googleapi.ContentType(ct)).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		file := &drive.File{
			Name:          strings.ReplaceAll(in.ObjectKey, "/", "_"),
			AppProperties: map[string]string{objectKeyProperty: in.ObjectKey},
		}
		if c.folderID != "" {
			file.Parents = []string{c.folderID}
		}
		f, err = c.srv.Files.Create(file).
			Media(in.Reader, googleapi.ContentType(ct)).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, op, "upload failed")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: max(f.Size, in.Size)}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, int64, error) {
	f, err := c.find(ctx, objectKey)
	if err != nil {
		return nil, 0, err
	}
	if f == nil {
		return nil, 0, errors.Newf(errors.CodeFilesystem, "object not found: %s", objectKey)
	}

	resp, err := c.srv.Files.Get(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, 0, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.get "+objectKey, "download failed")
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	f, err := c.find(ctx, objectKey)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	err = c.srv.Files.Delete(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.delete "+objectKey, "delete failed")
	}
	return nil
}

func (c *Client) find(ctx context.Context, objectKey string) (*drive.File, error) {
	res, err := c.srv.Files.List().
		Q(query(c.folderID, objectKey)).
		Fields("files(id, name, size)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.find "+objectKey, "list failed")
	}
	if len(res.Files) == 0 {
		return nil, nil
	}
	return res.Files[0], nil
}

func query(folderID, objectKey string) string {
	q := fmt.Sprintf("appProperties has { key='%s' and value='%s' } and trashed = false",
		objectKeyProperty, escape(objectKey))
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escape(folderID))
	}
	return q
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
