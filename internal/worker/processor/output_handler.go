package processor

import (
	"bytes"
	"context"
	"time"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/pkg/logger"
	"metatiled/internal/ports"
)

const metatileContentType = "application/x-metatile"

// OutputHandler publishes encoded metatiles to the primary store and, when
// configured, copies them to a mirror.
type OutputHandler struct {
	store  ports.StorageProvider
	mirror ports.StorageProvider
	// mirrorTimeout bounds each mirror upload.
	mirrorTimeout time.Duration
	log           *logger.Logger
}

func NewOutputHandler(store, mirror ports.StorageProvider, mirrorTimeout time.Duration, log *logger.Logger) *OutputHandler {
	return &OutputHandler{store: store, mirror: mirror, mirrorTimeout: mirrorTimeout, log: log}
}

// Publish stores data under key and returns the stored size. Only a primary
// store failure is returned.
func (oh *OutputHandler) Publish(ctx context.Context, key string, data []byte) (int64, error) {
	if oh.store == nil {
		return 0, errors.Configuration("no metatile store configured")
	}

	out, err := oh.store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: metatileContentType,
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return 0, err
	}

	if oh.mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, oh.mirrorTimeout)
		defer cancel()
		_, err := oh.mirror.PutObject(mctx, ports.PutObjectInput{
			ObjectKey:   key,
			ContentType: metatileContentType,
			Reader:      bytes.NewReader(data),
			Size:        int64(len(data)),
		})
		if err != nil {
			oh.log.WithError(err).Warn("mirror upload failed",
				"provider", oh.mirror.Provider(),
				"object_key", key,
			)
		}
	}

	return out.Size, nil
}
