// Package main defines the orbit CLI using kong.
package main

import (
	"time"

	"github.com/alecthomas/kong"
)

// Globals are flags shared by every command.
type Globals struct {
	Config string `short:"c" default:"orbit.yaml" help:"Config file path (missing file means defaults)"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"1" help:"Start the local API, event stream and chat gateways"`
	Run     RunCmd     `cmd:"" help:"Plan and execute one command, streaming its steps"`
	Plan    PlanCmd    `cmd:"" help:"Show the plan for a command without executing it"`
	Tools   ToolsCmd   `cmd:"" help:"List registered tools"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ServeCmd runs the agent until interrupted.
type ServeCmd struct {
	Host        string `help:"Override server.host"`
	Port        int    `help:"Override server.port"`
	NoDashboard bool   `help:"Disable the terminal banner and live status line"`
	NoGateways  bool   `help:"Do not start Telegram or Discord even if configured"`
}

// RunCmd executes one command and exits non-zero if it fails.
type RunCmd struct {
	Command []string      `arg:"" help:"Command text, e.g. create 3 files in documents"`
	DryRun  bool          `help:"Print the plan instead of executing it"`
	Timeout time.Duration `default:"10m" help:"Give up waiting for the run after this long"`
}

// PlanCmd previews a plan.
type PlanCmd struct {
	Command []string `arg:"" help:"Command text"`
}

// ToolsCmd lists the tool registry.
type ToolsCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
