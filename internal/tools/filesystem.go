package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Paths resolves user-supplied locations. "~" and "~/x" expand to Home,
// absolute paths are kept, and relative paths live under Home. A leading
// well-known folder name ("documents", "desktop", ...) is matched to its
// capitalized directory.
type Paths struct {
	Home string
}

var wellKnownDirs = map[string]string{
	"documents": "Documents",
	"desktop":   "Desktop",
	"downloads": "Downloads",
	"music":     "Music",
	"pictures":  "Pictures",
	"movies":    "Movies",
}

func (p Paths) Resolve(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), `"'`)
	switch {
	case raw == "" || raw == "~":
		return filepath.Clean(p.Home)
	case strings.HasPrefix(raw, "~/"):
		raw = raw[2:]
	case filepath.IsAbs(raw):
		return filepath.Clean(raw)
	case raw == ".":
		return filepath.Clean(p.Home)
	}

	parts := strings.SplitN(filepath.ToSlash(raw), "/", 2)
	if proper, ok := wellKnownDirs[strings.ToLower(parts[0])]; ok {
		parts[0] = proper
	}
	return filepath.Join(append([]string{p.Home}, parts...)...)
}

// CreateFilesTool creates a batch of empty files named <prefix>_<i>.<ext>.
type CreateFilesTool struct {
	Paths Paths
}

func NewCreateFilesTool(paths Paths) *CreateFilesTool {
	return &CreateFilesTool{Paths: paths}
}

func (c *CreateFilesTool) Name() string {
	return "create_files"
}

func (c *CreateFilesTool) Description() string {
	return "Create a number of empty files in a directory, creating the directory if needed."
}

func (c *CreateFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     1000,
				"description": "How many files to create",
			},
			"dir": map[string]any{
				"type":        "string",
				"description": "Target directory; '~' and relative paths resolve under the home directory",
			},
			"prefix": map[string]any{
				"type":        "string",
				"description": "File name prefix (default 'note')",
			},
			"ext": map[string]any{
				"type":        "string",
				"description": "File extension without the dot (default 'md')",
			},
		},
		"required": []string{"count", "dir"},
	}
}

func (c *CreateFilesTool) Execute(ctx context.Context, params Params) Result {
	count := params.Int("count")
	if count < 1 {
		return Failure(KindInvalidParams, "count must be at least 1")
	}
	dir := c.Paths.Resolve(params.String("dir"))
	prefix := params.StringOr("prefix", "note")
	ext := strings.TrimPrefix(params.StringOr("ext", "md"), ".")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return Failure(KindFilesystem, "failed to create directory %s: %v", dir, err)
	}

	paths := make([]string, 0, count)
	for idx := 1; len(paths) < count; idx++ {
		if err := ctx.Err(); err != nil {
			return Failure(KindExecution, "create_files interrupted after %d file(s): %v", len(paths), err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.%s", prefix, idx, ext))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Failure(KindFilesystem, "failed to write %s: %v", path, err)
		}
		if err := f.Close(); err != nil {
			return Failure(KindFilesystem, "failed to write %s: %v", path, err)
		}
		paths = append(paths, path)
	}

	return Success(fmt.Sprintf("Created %d file(s) in %s", len(paths), dir), map[string]any{"paths": paths})
}

func pathSchema(extra map[string]any, required ...string) map[string]any {
	props := map[string]any{}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var (
	pathProp    = map[string]any{"type": "string", "description": "File or directory path"}
	contentProp = map[string]any{"type": "string", "description": "Text content"}
)

// maxReadBytes bounds read_file output carried in step events.
const maxReadBytes = 50000

// NewFilesystemTools returns the read/write/list/mkdir/move/delete/reveal tools.
func NewFilesystemTools(paths Paths, runner CommandRunner) []Tool {
	return []Tool{
		&funcTool{
			name:        "read_file",
			description: "Read a UTF-8 text file.",
			schema:      pathSchema(map[string]any{"path": pathProp}, "path"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				data, err := os.ReadFile(path)
				if err != nil {
					return Failure(KindFilesystem, "failed to read file %s: %v", path, err)
				}
				content := string(data)
				if len(content) > maxReadBytes {
					content = clip(content, maxReadBytes) + "\n... (truncated)"
				}
				return Success(fmt.Sprintf("Read %d byte(s) from %s", len(data), path),
					map[string]any{"path": path, "content": content, "size": len(data)})
			},
		},
		&funcTool{
			name:        "write_file",
			description: "Write text to a file, creating parent directories.",
			schema:      pathSchema(map[string]any{"path": pathProp, "content": contentProp}, "path", "content"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					return Failure(KindFilesystem, "failed to create directory for %s: %v", path, err)
				}
				content := params.String("content")
				if err := os.WriteFile(path, []byte(content), 0644); err != nil {
					return Failure(KindFilesystem, "failed to write file %s: %v", path, err)
				}
				return Success(fmt.Sprintf("Wrote %d byte(s) to %s", len(content), path),
					map[string]any{"path": path, "size": len(content)})
			},
		},
		&funcTool{
			name:        "list_directory",
			description: "List the entries of a directory, directories first.",
			schema:      pathSchema(map[string]any{"path": pathProp}, "path"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				entries, err := os.ReadDir(path)
				if err != nil {
					return Failure(KindFilesystem, "failed to list directory %s: %v", path, err)
				}
				sort.SliceStable(entries, func(i, j int) bool {
					if entries[i].IsDir() != entries[j].IsDir() {
						return entries[i].IsDir()
					}
					return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
				})
				listing := make([]map[string]any, 0, len(entries))
				for _, e := range entries {
					typ := "file"
					if e.IsDir() {
						typ = "dir"
					}
					listing = append(listing, map[string]any{"name": e.Name(), "type": typ})
				}
				return Success(fmt.Sprintf("Listed %d entries in %s", len(entries), path),
					map[string]any{"path": path, "entries": listing})
			},
		},
		&funcTool{
			name:        "make_directory",
			description: "Create a directory and any missing parents.",
			schema:      pathSchema(map[string]any{"path": pathProp}, "path"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				if err := os.MkdirAll(path, 0755); err != nil {
					return Failure(KindFilesystem, "failed to create directory %s: %v", path, err)
				}
				return Success(fmt.Sprintf("Created directory %s", path), map[string]any{"path": path})
			},
		},
		&funcTool{
			name:        "move_file",
			description: "Move or rename a file or directory.",
			schema: pathSchema(map[string]any{
				"source":      pathProp,
				"destination": pathProp,
			}, "source", "destination"),
			run: func(ctx context.Context, params Params) Result {
				src := paths.Resolve(params.String("source"))
				dst := paths.Resolve(params.String("destination"))
				if info, err := os.Stat(dst); err == nil && info.IsDir() {
					dst = filepath.Join(dst, filepath.Base(src))
				}
				if err := os.Rename(src, dst); err != nil {
					return Failure(KindFilesystem, "failed to move %s to %s: %v", src, dst, err)
				}
				return Success(fmt.Sprintf("Moved %s to %s", src, dst),
					map[string]any{"source": src, "destination": dst})
			},
		},
		&funcTool{
			name:        "delete_file",
			description: "Delete a file or an empty directory.",
			schema:      pathSchema(map[string]any{"path": pathProp}, "path"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				if path == filepath.Clean(paths.Home) {
					return Failure(KindFilesystem, "refusing to delete the home directory")
				}
				if err := os.Remove(path); err != nil {
					return Failure(KindFilesystem, "failed to delete %s: %v", path, err)
				}
				return Success(fmt.Sprintf("Deleted %s", path), map[string]any{"path": path})
			},
		},
		&funcTool{
			name:        "reveal",
			description: "Reveal a file or directory in the platform file manager.",
			schema:      pathSchema(map[string]any{"path": pathProp}, "path"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				if _, err := os.Stat(path); err != nil {
					return Failure(KindFilesystem, "cannot reveal %s: %v", path, err)
				}
				name, args := "xdg-open", []string{filepath.Dir(path)}
				if runtime.GOOS == "darwin" {
					name, args = "open", []string{"-R", path}
				}
				if _, stderr, _, err := runner.Run(ctx, name, args...); err != nil {
					return Failure(KindExecution, "failed to reveal %s: %v %s", path, err, strings.TrimSpace(string(stderr)))
				}
				return Success(fmt.Sprintf("Revealed %s", path), map[string]any{"path": path})
			},
		},
		&funcTool{
			name:        "wait_for_path",
			description: "Wait until a path exists, failing after timeout_seconds (default 30).",
			schema: pathSchema(map[string]any{
				"path": pathProp,
				"timeout_seconds": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": 600,
				},
			}, "path"),
			run: func(ctx context.Context, params Params) Result {
				path := paths.Resolve(params.String("path"))
				timeout := time.Duration(params.IntOr("timeout_seconds", 30)) * time.Second
				return waitFor(ctx, timeout, 250*time.Millisecond, func() bool {
					_, err := os.Stat(path)
					return err == nil
				}, fmt.Sprintf("%s to appear", path), map[string]any{"path": path})
			},
		},
	}
}
