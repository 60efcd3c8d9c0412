package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"metatiled/internal/metatile"
)

type inspectCmd struct {
	extractDir string
}

func (c *inspectCmd) Name() string     { return "inspect" }
func (c *inspectCmd) Synopsis() string { return "print the header and table of contents of a metatile" }
func (c *inspectCmd) Usage() string {
	return "metatile inspect [-extract <dir>] <file.meta>\n"
}
func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.extractDir, "extract", "", "Write every present tile to <dir>/<z>/<x>/<y>.png")
}

func (c *inspectCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.Print(c.Usage())
		return subcommands.ExitUsageError
	}

	file, err := os.Open(f.Arg(0))
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	mt, err := metatile.Read(file, info.Size())
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	if err := printMetatile(os.Stdout, mt); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if c.extractDir != "" {
		if err := extractTiles(c.extractDir, mt); err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

func printMetatile(w io.Writer, mt *metatile.Metatile) error {
	if _, err := fmt.Fprintf(w, "count=%d x=%d y=%d z=%d\n", mt.Count, mt.X, mt.Y, mt.Z); err != nil {
		return err
	}
	n := mt.Size()
	for i, e := range mt.Entries {
		tx, ty := int(mt.X), int(mt.Y)
		if n > 0 {
			tx, ty = tx+i/n, ty+i%n
		}
		if _, err := fmt.Fprintf(w, "%4d %d/%d/%d offset=%d length=%d\n", i, mt.Z, tx, ty, e.Offset, e.Length); err != nil {
			return err
		}
	}
	return nil
}

func extractTiles(dir string, mt *metatile.Metatile) error {
	n := mt.Size()
	if n == 0 {
		return fmt.Errorf("tile count %d is not a square grid", mt.Count)
	}
	for i, e := range mt.Entries {
		if e.Length == 0 {
			continue
		}
		data, err := mt.Tile(i)
		if err != nil {
			return err
		}
		path := filepath.Join(dir,
			fmt.Sprint(mt.Z), fmt.Sprint(int(mt.X)+i/n), fmt.Sprintf("%d.png", int(mt.Y)+i%n))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
