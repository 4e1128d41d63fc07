package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"toolrunner/internal/tools"
)

const readToolName = "read"

type readInput struct {
	Path   string `json:"path" jsonschema:"description=Path to the file, relative to the workspace or absolute"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Line number to start reading from (1-indexed)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read"`
}

func newReadTool(ws workspace, limits outputLimits) (tools.Registration, error) {
	description := fmt.Sprintf(
		"Read a file from the workspace. Output is truncated to %d lines or %s; use offset and limit to page through large files.",
		limits.lines, formatSize(limits.bytes),
	)
	return tools.NewFunc(readToolName, description, func(ctx context.Context, input readInput) (tools.Result, error) {
		if err := ctx.Err(); err != nil {
			return tools.Result{}, err
		}
		if input.Offset < 0 || input.Limit < 0 {
			return tools.Result{}, errors.New("offset and limit must be >= 0")
		}

		path, err := ws.existing(input.Path)
		if err != nil {
			return tools.Result{}, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return tools.Result{}, fmt.Errorf("read %s: %w", input.Path, err)
		}

		lines := strings.Split(string(raw), "\n")
		start := 0
		if input.Offset > 0 {
			start = input.Offset - 1
		}
		if start >= len(lines) {
			return tools.Result{}, fmt.Errorf("offset %d is beyond end of file (%d lines total)", input.Offset, len(lines))
		}
		end := len(lines)
		if input.Limit > 0 && start+input.Limit < end {
			end = start + input.Limit
		}

		selected := strings.Join(lines[start:end], "\n")
		cut := truncateHead(selected, limits.lines, limits.bytes)
		content := cut.Content
		switch {
		case cut.Truncated:
			last := start + cut.OutputLines
			content += fmt.Sprintf("\n\n[Showing lines %d-%d of %d. Use offset=%d to continue.]", start+1, last, len(lines), last+1)
		case end < len(lines):
			content += fmt.Sprintf("\n\n[%d more lines in file. Use offset=%d to continue.]", len(lines)-end, end+1)
		}
		return tools.Result{Content: content}, nil
	})
}
