package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Config  string           `short:"c" default:"twentyone.hcl" type:"path" help:"Path to HCL configuration file"`

	Server ServerCmd `cmd:"" help:"Run the relay server"`
	Host   HostCmd   `cmd:"" help:"Host a two-player game"`
	Join   JoinCmd   `cmd:"" help:"Join a hosted game by lobby code"`
	Solo   SoloCmd   `cmd:"" help:"Play alone against an automatic dealer"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("twentyone"),
		kong.Description("Two-player blackjack over a relay server or a direct connection"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
