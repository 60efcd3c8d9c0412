package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/subcommands"

	"metatiled/internal/protocol"
	"metatiled/internal/worker/util"
)

type sendCmd struct {
	addr    string
	layer   string
	x, y, z int
	timeout time.Duration
}

func (c *sendCmd) Name() string     { return "send" }
func (c *sendCmd) Synopsis() string { return "send one metatile render request to a backend" }
func (c *sendCmd) Usage() string {
	return "metatile send -addr <host:port> -map <layer> -x <x> -y <y> -z <z>\n"
}
func (c *sendCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "127.0.0.1:9320", "Backend address")
	f.StringVar(&c.layer, "map", "", "Layer name")
	f.IntVar(&c.x, "x", 0, "Metatile x")
	f.IntVar(&c.y, "y", 0, "Metatile y")
	f.IntVar(&c.z, "z", 0, "Zoom")
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "How long to wait for the response")
}

func (c *sendCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.layer == "" {
		log.Println("-map is required")
		return subcommands.ExitUsageError
	}

	req := protocol.RenderRequest{ID: util.NewID("cli"), Map: c.layer, X: c.x, Y: c.y, Z: c.z}
	fields, err := protocol.Exchange(ctx, c.addr, req.Fields(), c.timeout)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, fields[k])
	}

	if resp, err := protocol.ParseRenderResponse(fields); err != nil || !resp.OK {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
