package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"toolrunner/internal/tools"
)

const writeToolName = "write"

type writeInput struct {
	Path    string `json:"path" jsonschema:"description=Path to the file, relative to the workspace or absolute"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

func newWriteTool(ws workspace) (tools.Registration, error) {
	return tools.NewFunc(writeToolName,
		"Write full file content inside the workspace, creating parent directories when needed.",
		func(ctx context.Context, input writeInput) (tools.Result, error) {
			if err := ctx.Err(); err != nil {
				return tools.Result{}, err
			}
			path, err := ws.writable(input.Path)
			if err != nil {
				return tools.Result{}, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return tools.Result{}, fmt.Errorf("mkdir parent for %s: %w", input.Path, err)
			}
			if err := os.WriteFile(path, []byte(input.Content), 0o644); err != nil {
				return tools.Result{}, fmt.Errorf("write %s: %w", input.Path, err)
			}
			return tools.Result{Content: fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path)}, nil
		})
}
