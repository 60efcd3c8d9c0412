package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/subcommands"

	"metatiled/internal/metatile"
	"metatiled/internal/storage"
)

type pathCmd struct {
	tileDir string
	layer   string
	x, y, z int
}

func (c *pathCmd) Name() string     { return "path" }
func (c *pathCmd) Synopsis() string { return "print where a metatile is stored" }
func (c *pathCmd) Usage() string {
	return "metatile path [-dir <tiledir>] -map <layer> -x <x> -y <y> -z <z>\n"
}
func (c *pathCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tileDir, "dir", storage.DefaultTileDir, "Tile directory")
	f.StringVar(&c.layer, "map", "", "Layer name")
	f.IntVar(&c.x, "x", 0, "Tile x")
	f.IntVar(&c.y, "y", 0, "Tile y")
	f.IntVar(&c.z, "z", 0, "Zoom")
}

func (c *pathCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.layer == "" {
		log.Print(c.Usage())
		return subcommands.ExitUsageError
	}
	fmt.Println(tilePath(c.tileDir, c.layer, c.x, c.y, c.z, metatile.DefaultSize))
	return subcommands.ExitSuccess
}

// tilePath returns the file holding tile (x, y, z); the tile's metatile
// origin is its coordinates rounded down to a multiple of size.
func tilePath(dir, layer string, x, y, z, size int) string {
	key := metatile.ObjectKey(layer, x-x%size, y-y%size, z)
	return filepath.Join(dir, filepath.FromSlash(key))
}
