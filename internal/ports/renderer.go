package ports

import (
	"context"
	"image"

	"github.com/paulmach/orb/maptile"
)

// TileRequest describes a single tile to rasterize.
type TileRequest struct {
	Layer      string
	Width      int
	Height     int
	Projection string
	Tile       maptile.Tile
}

// Renderer rasterizes one tile. Implementations: HTTP renderer client,
// test stubs. A failed tile is reported as an error, never as a nil image.
type Renderer interface {
	RenderTile(ctx context.Context, req TileRequest) (image.Image, error)
}
