// Package builtin provides the file and shell tools the CLI registers.
package builtin

import (
	"fmt"

	"toolrunner/internal/tools"
)

// Options configures the builtin tool set.
type Options struct {
	// Workspace confines read and write paths. Empty means the working directory.
	Workspace string
	// Async registers bash as an AsyncHandler.
	Async bool
	// MaxOutputLines and MaxOutputBytes bound tool output before it reaches the model.
	MaxOutputLines int
	MaxOutputBytes int
}

// Register adds read, write, edit and bash to reg.
func Register(reg *tools.Registry, opts Options) error {
	ws, err := openWorkspace(opts.Workspace)
	if err != nil {
		return err
	}
	limits := outputLimits{lines: opts.MaxOutputLines, bytes: opts.MaxOutputBytes}
	if limits.lines <= 0 {
		limits.lines = defaultMaxLines
	}
	if limits.bytes <= 0 {
		limits.bytes = defaultMaxBytes
	}

	builders := []func() (tools.Registration, error){
		func() (tools.Registration, error) { return newReadTool(ws, limits) },
		func() (tools.Registration, error) { return newWriteTool(ws) },
		func() (tools.Registration, error) { return newEditTool(ws) },
		func() (tools.Registration, error) { return newBashTool(ws, limits, opts.Async) },
	}
	for _, build := range builders {
		registration, err := build()
		if err != nil {
			return err
		}
		if err := reg.Register(registration); err != nil {
			return fmt.Errorf("register %s: %w", registration.Name, err)
		}
	}
	return nil
}

type outputLimits struct {
	lines int
	bytes int
}
