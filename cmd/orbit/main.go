// Package main is the entry point for the orbit agent.
package main

import (
	"github.com/alecthomas/kong"

	"github.com/rahul/orbit/pkg/config"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("orbit"),
		kong.Description("Local automation agent: plain-English commands in, live step events out."),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func (g *Globals) load() (*config.Config, error) {
	return config.LoadConfig(g.Config)
}
