package tools

import "log"

// Options configures the built-in tool set.
type Options struct {
	Home          string
	HelperPath    string
	Launcher      []string
	Headless      bool
	ScreenshotDir string
	// Shell registers the shell tool.
	Shell  bool
	Runner CommandRunner
}

// NewDefaultRegistry registers every built-in tool. The returned Browser must
// be closed on shutdown.
func NewDefaultRegistry(opts Options) (*Registry, *Browser) {
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	paths := Paths{Home: opts.Home}

	registry := NewRegistry()

	helper := NewHelperTool(opts.HelperPath, runner)
	registry.Register(helper)
	registry.Register(NewMediaTool(helper))
	for _, t := range NewCalendar(helper).Tools() {
		registry.Register(t)
	}
	registry.Register(NewOpenAppTool(opts.Launcher, runner))
	registry.Register(NewCreateFilesTool(paths))
	for _, t := range NewFilesystemTools(paths, runner) {
		registry.Register(t)
	}
	registry.Register(NewWaitTool())
	if opts.Shell {
		registry.Register(NewShellTool(runner))
	}

	browser := NewBrowser(opts.Headless, opts.ScreenshotDir)
	for _, t := range NewBrowserTools(browser) {
		registry.Register(t)
	}
	registry.Register(NewFetchPageTool())

	searchTool, err := NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	return registry, browser
}
