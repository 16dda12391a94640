package main

import (
	"fmt"
	"io"
	"log"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/executor"
	"github.com/rahul/orbit/internal/governance"
	"github.com/rahul/orbit/internal/observability"
	"github.com/rahul/orbit/internal/planner"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/store"
	"github.com/rahul/orbit/internal/tools"
	"github.com/rahul/orbit/pkg/config"
)

// app is the wired object graph every command runs against.
type app struct {
	cfg      *config.Config
	registry *tools.Registry
	browser  *tools.Browser
	hub      *steps.Hub
	audit    *store.AuditStore
	logger   *observability.Logger
	metrics  *observability.Metrics
	exec     *executor.Executor
	agent    *agent.Agent
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	policy, err := governance.NewPolicyEngine(cfg.Policy.DeniedTools, cfg.Policy.DeniedPatterns)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	audit, err := store.NewAuditStore(cfg.Audit.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	registry, browser := tools.NewDefaultRegistry(tools.Options{
		Home:          cfg.App.Home,
		HelperPath:    cfg.Tools.HelperPath,
		Launcher:      cfg.Tools.Launcher,
		Headless:      cfg.Tools.Headless,
		ScreenshotDir: cfg.Tools.ScreenshotDir,
		Shell:         cfg.Tools.Shell,
	})

	logger := observability.NewLogger(logOut, cfg.Logging.Path)
	metrics := observability.NewMetrics()
	hub := steps.NewHub(cfg.Server.HubBuffer)

	exec := executor.New(hub, executor.Options{
		Recorder:    executor.Recorders(audit, logger, metrics),
		StepTimeout: cfg.Executor.StepTimeout,
		Retain:      cfg.Executor.RetainRuns,
	})
	metrics.WatchHub(hub)
	metrics.WatchActiveRuns(exec.Active)

	return &app{
		cfg:      cfg,
		registry: registry,
		browser:  browser,
		hub:      hub,
		audit:    audit,
		logger:   logger,
		metrics:  metrics,
		exec:     exec,
		agent: &agent.Agent{
			Planner:  planner.New(registry),
			Executor: exec,
			Policy:   policy,
			Logger:   logger,
			Security: audit,
			Rejects:  metrics,
		},
	}, nil
}

// close stops in-flight runs first so no step outlives the browser or the
// audit store it writes to.
func (a *app) close() {
	a.exec.Close()
	a.browser.Close()
	if err := a.audit.Close(); err != nil {
		log.Printf("Warning: closing audit store: %v", err)
	}
	a.hub.Close()
}
