// Package metatile builds and reads metatile containers: N×N map tiles of one
// layer packed into a single file behind a table of contents.
//
// Layout (all integers little-endian int32):
//
//	0   "META"
//	4   tile count (N²)
//	8   x, y, z of the top-left tile
//	20  tile count × (offset, length); offsets are from the start of the file
//	... tile payloads in grid order
//
// Grid order is x outer, y inner: entry i*N+j is tile (x+i, y+j).
package metatile

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/paulmach/orb/maptile"

	"metatiled/internal/layers"
	"metatiled/internal/pkg/errors"
	"metatiled/internal/pkg/logger"
	"metatiled/internal/ports"
)

// Magic opens every metatile.
const Magic = "META"

// HeaderSize is the byte size of the fixed header preceding the table of contents.
const HeaderSize = 20

// DefaultSize is the metatile edge length in tiles.
const DefaultSize = 8

type fileHeader struct {
	Magic [4]byte
	Count int32
	X     int32
	Y     int32
	Z     int32
}

// LayerResolver finds the configuration of a layer by name.
type LayerResolver interface {
	Layer(name string) (layers.Layer, bool)
}

// Report describes the outcome of one encode.
type Report struct {
	Layer    layers.Layer
	Jobs     []*TileJob
	Rendered int
	Skipped  int
	Failed   int
	// TileErrors joins the errors of failed jobs; nil when none failed.
	TileErrors error
}

// EncoderDeps are the collaborators of an Encoder. Workers < 1 selects
// DefaultWorkers and a nil Log discards.
type EncoderDeps struct {
	Layers   LayerResolver
	Renderer ports.Renderer
	Workers  int
	Log      *logger.Logger
}

// Encoder renders metatiles through a Renderer.
type Encoder struct {
	layers   LayerResolver
	renderer ports.Renderer
	pool     *Pool
	log      *logger.Logger
}

// NewEncoder returns an Encoder with its own tile pool.
func NewEncoder(d EncoderDeps) *Encoder {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("metatile")

	return &Encoder{
		layers:   d.Layers,
		renderer: d.Renderer,
		pool:     NewPool(d.Workers, log),
		log:      log,
	}
}

// Encode renders the size×size tiles of layerName starting at (x, y, z) and
// writes the container to out, whose position must be at the container
// start. Unknown layers fail before anything is written. Individual tile
// failures do not fail the encode; they are recorded in the report and the
// tile is stored with length 0. A tile that fails with a configuration error
// fails the encode, since every other tile of the layer would fail the same
// way. out is left positioned after the table of
// contents.
func (e *Encoder) Encode(ctx context.Context, layerName string, x, y, z, size int, out io.WriteSeeker) (*Report, error) {
	layer, ok := e.layers.Layer(layerName)
	if !ok {
		return nil, errors.Configurationf("layer not configured: %s", layerName).
			WithField("layer", layerName)
	}
	format, err := layer.Format()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "metatile.encode", "layer "+layer.Name)
	}
	if size < 1 {
		return nil, errors.Configurationf("invalid metatile size %d", size)
	}
	if x < 0 || y < 0 || z < 0 || z > 30 || x > math.MaxInt32 || y > math.MaxInt32 {
		return nil, errors.Newf(errors.CodeDecode, "invalid metatile origin %d/%d/%d", z, x, y)
	}

	count := size * size
	base, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, ioError(err, "locate output")
	}

	header := fileHeader{Count: int32(count), X: int32(x), Y: int32(y), Z: int32(z)}
	copy(header.Magic[:], Magic)
	if err := binary.Write(out, binary.LittleEndian, &header); err != nil {
		return nil, ioError(err, "write header")
	}

	tocPosition, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, ioError(err, "locate table of contents")
	}
	offset, err := out.Seek(int64(8*count), io.SeekCurrent)
	if err != nil {
		return nil, ioError(err, "reserve table of contents")
	}

	jobs := make([]*TileJob, 0, count)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			jobs = append(jobs, &TileJob{
				Tile: maptile.New(uint32(x+i), uint32(y+j), maptile.Zoom(z)),
			})
		}
	}

	report := &Report{Layer: layer, Jobs: jobs}
	report.TileErrors = e.pool.Run(ctx, jobs, func(ctx context.Context, t maptile.Tile) (image.Image, error) {
		return e.renderer.RenderTile(ctx, ports.TileRequest{
			Layer:      layer.Name,
			Width:      layer.TileSize,
			Height:     layer.TileSize,
			Projection: layer.Projection,
			Tile:       t,
		})
	})

	for _, job := range jobs {
		if job.State == JobFailed && errors.IsConfiguration(job.Err) {
			return report, errors.Wrap(job.Err, "metatile.encode", "layer "+layer.Name+" cannot be rendered")
		}
	}

	toc := make([]int32, 0, 2*count)
	for _, job := range jobs {
		tilePosition := offset
		switch job.State {
		case JobRendered:
			report.Rendered++
			if err := format.Encode(out, job.Image); err != nil {
				return report, ioError(err, fmt.Sprintf("write tile %d/%d/%d", job.Tile.Z, job.Tile.X, job.Tile.Y))
			}
			if offset, err = out.Seek(0, io.SeekCurrent); err != nil {
				return report, ioError(err, "locate tile end")
			}
		case JobSkipped:
			report.Skipped++
		case JobFailed:
			report.Failed++
		}

		start, length := tilePosition-base, offset-tilePosition
		if start+length > math.MaxInt32 {
			return report, errors.Newf(errors.CodeInternal, "metatile exceeds %d bytes", math.MaxInt32)
		}
		toc = append(toc, int32(start), int32(length))
	}

	if _, err := out.Seek(tocPosition, io.SeekStart); err != nil {
		return report, ioError(err, "seek to table of contents")
	}
	if err := binary.Write(out, binary.LittleEndian, toc); err != nil {
		return report, ioError(err, "write table of contents")
	}

	e.log.Debug("metatile encoded",
		"layer", layer.Name,
		"z", z, "x", x, "y", y,
		"rendered", report.Rendered,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func ioError(err error, what string) error {
	return errors.WrapWithCode(err, errors.CodeFilesystem, "metatile.encode", what)
}
