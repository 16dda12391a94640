package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/gateway"
	"github.com/rahul/orbit/internal/planner"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/tools"
)

// SourceCLI tags runs started from the command line.
const SourceCLI = "cli"

var errRunFailed = errors.New("run failed")

func (c *RunCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer a.close()

	command := strings.Join(c.Command, " ")
	if c.DryRun {
		plan, err := a.agent.Plan(command)
		if err != nil {
			return rejected(err)
		}
		return printPlan(os.Stdout, plan)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	return runCommand(ctx, a, os.Stdout, command)
}

// runCommand submits command and prints its events until it finishes.
func runCommand(ctx context.Context, a *app, w io.Writer, command string) error {
	sub := a.hub.Subscribe()
	runID, err := a.agent.Submit(ctx, SourceCLI, command)
	if err != nil {
		a.hub.Unsubscribe(sub)
		return rejected(err)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for evt := range sub.Events() {
			if evt.RunID == runID {
				fmt.Fprintln(w, gateway.FormatEvent(evt))
			}
		}
	}()

	run, err := a.exec.Wait(ctx, runID)
	a.hub.Unsubscribe(sub)
	<-printed
	if err != nil {
		return fmt.Errorf("waiting for run %s: %w", runID, err)
	}

	fmt.Fprintln(w, gateway.FormatRun(run))
	if run.Status == steps.RunFailed {
		return errRunFailed
	}
	return nil
}

func (c *PlanCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer a.close()

	plan, err := a.agent.Plan(strings.Join(c.Command, " "))
	if err != nil {
		return rejected(err)
	}
	return printPlan(os.Stdout, plan)
}

func (c *ToolsCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, io.Discard)
	if err != nil {
		return err
	}
	defer a.close()

	return printTools(os.Stdout, a.registry)
}

func (c *VersionCmd) Run() error {
	fmt.Printf("orbit %s (%s)\n", version, commit)
	return nil
}

func rejected(err error) error {
	return fmt.Errorf("%s: %w", agent.KindOf(err), err)
}

func printPlan(w io.Writer, plan planner.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"command": plan.Command, "steps": plan.Summary()})
}

func printTools(w io.Writer, registry *tools.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, d := range registry.Describe() {
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
	}
	return tw.Flush()
}
