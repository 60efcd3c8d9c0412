package storage

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"metatiled/internal/adapters/storage/gdrive"
	"metatiled/internal/adapters/storage/localfs"
	"metatiled/internal/pkg/errors"
	"metatiled/internal/worker/util"
)

// DefaultTileDir is where metatiles are published when no directory is configured.
const DefaultTileDir = "/var/lib/metatiles"

// NewPrimary returns the local tile store rooted at dir.
func NewPrimary(dir string) *localfs.LocalFS {
	if dir == "" {
		dir = DefaultTileDir
	}
	return localfs.New(dir)
}

// NewMirror returns the provider selected by STORAGE_MIRROR, or nil when
// mirroring is off.
func NewMirror(ctx context.Context) (Provider, error) {
	switch provider := util.Env("STORAGE_MIRROR", ""); provider {
	case "", "none":
		return nil, nil
	case "gdrive":
		return newGDriveProvider(ctx)
	default:
		return nil, errors.Configurationf("unknown storage mirror: %s", provider)
	}
}

// OAuthConfig returns the Drive OAuth client configuration read from
// GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET.
func OAuthConfig() (*oauth2.Config, error) {
	clientID := util.Env("GDRIVE_CLIENT_ID", "")
	clientSecret := util.Env("GDRIVE_CLIENT_SECRET", "")
	if clientID == "" || clientSecret == "" {
		return nil, errors.Configuration("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}, nil
}

func newGDriveProvider(ctx context.Context) (Provider, error) {
	conf, err := OAuthConfig()
	if err != nil {
		return nil, err
	}
	refreshToken := util.Env("GDRIVE_REFRESH_TOKEN", "")
	if refreshToken == "" {
		return nil, errors.Configuration("GDRIVE_REFRESH_TOKEN is required")
	}
	folderID := util.Env("GDRIVE_FOLDER_ID", "")

	tok := &oauth2.Token{RefreshToken: refreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "storage.gdrive", "create drive service")
	}

	return gdrive.NewClient(srv, folderID), nil
}
