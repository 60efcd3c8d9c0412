package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&sendCmd{}, "")
	subcommands.Register(&seedCmd{}, "")
	subcommands.Register(&inspectCmd{}, "")
	subcommands.Register(&pathCmd{}, "")
	subcommands.Register(&gdriveAuthCmd{}, "storage")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
