package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"

	"metatiled/internal/metatile"
	"metatiled/internal/protocol"
	"metatiled/internal/worker/util"
)

// maxLatitude is the edge of the web mercator square.
const maxLatitude = 85.0511

type seedCmd struct {
	addr    string
	layer   string
	bbox    string
	minZoom int
	maxZoom int
	size    int
	timeout time.Duration
}

func (c *seedCmd) Name() string     { return "seed" }
func (c *seedCmd) Synopsis() string { return "render every metatile covering a bounding box" }
func (c *seedCmd) Usage() string {
	return "metatile seed -addr <host:port> -map <layer> -bbox <minlon,minlat,maxlon,maxlat> [-minz <z> -maxz <z>]\n"
}
func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "127.0.0.1:9320", "Backend address")
	f.StringVar(&c.layer, "map", "", "Layer name")
	f.StringVar(&c.bbox, "bbox", "-180,-85,180,85", "Bounding box in degrees")
	f.IntVar(&c.minZoom, "minz", 0, "Lowest zoom")
	f.IntVar(&c.maxZoom, "maxz", 5, "Highest zoom")
	f.IntVar(&c.size, "size", metatile.DefaultSize, "Metatile edge length the backend uses")
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "How long to wait for each response")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	bound, err := parseBBox(c.bbox)
	if err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}
	if c.layer == "" || c.size < 1 || c.minZoom < 0 || c.maxZoom > 30 || c.minZoom > c.maxZoom {
		log.Println(c.Usage())
		return subcommands.ExitUsageError
	}

	reqs := coveringRequests(c.layer, bound, c.minZoom, c.maxZoom, c.size)
	bar := progressbar.New(len(reqs))
	failed := 0
	for _, req := range reqs {
		req.ID = util.NewID("seed")
		fields, err := protocol.Exchange(ctx, c.addr, req.Fields(), c.timeout)
		if err != nil {
			bar.Finish()
			fmt.Println()
			log.Println(err)
			return subcommands.ExitFailure
		}
		if resp, err := protocol.ParseRenderResponse(fields); err != nil || !resp.OK {
			failed++
			log.Printf("%d/%d/%d: %s", req.Z, req.X, req.Y, fields[protocol.FieldErrMsg])
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	if failed > 0 {
		log.Printf("%d of %d metatiles failed", failed, len(reqs))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs four comma separated values: %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min exceeds max: %q", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// coveringRequests lists the metatiles whose grids intersect bound, zoom by
// zoom, with origins aligned to size.
func coveringRequests(layer string, bound orb.Bound, minZoom, maxZoom, size int) []protocol.RenderRequest {
	var reqs []protocol.RenderRequest
	north := min(bound.Max[1], maxLatitude)
	south := max(bound.Min[1], -maxLatitude)
	for z := minZoom; z <= maxZoom; z++ {
		zoom := maptile.Zoom(z)
		nw := maptile.At(orb.Point{bound.Min[0], north}, zoom)
		se := maptile.At(orb.Point{bound.Max[0], south}, zoom)

		last := (1 << z) - 1
		x0, x1 := clamp(int(nw.X), last), clamp(int(se.X), last)
		y0, y1 := clamp(int(nw.Y), last), clamp(int(se.Y), last)

		for x := x0 - x0%size; x <= x1; x += size {
			for y := y0 - y0%size; y <= y1; y += size {
				reqs = append(reqs, protocol.RenderRequest{Map: layer, X: x, Y: y, Z: z})
			}
		}
	}
	return reqs
}

func clamp(v, last int) int {
	return max(0, min(v, last))
}
