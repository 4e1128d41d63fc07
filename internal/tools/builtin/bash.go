package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"toolrunner/internal/tools"
)

const bashToolName = "bash"

type bashInput struct {
	Command string `json:"command" jsonschema:"description=Shell command to execute"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds (optional; no default timeout)"`
}

func newBashTool(ws workspace, limits outputLimits, async bool) (tools.Registration, error) {
	description := fmt.Sprintf(
		"Execute a shell command in the workspace. Returns stdout and stderr, truncated to the last %d lines or %s.",
		limits.lines, formatSize(limits.bytes),
	)
	run := func(ctx context.Context, input bashInput) (tools.Result, error) {
		return runShell(ctx, ws.root, limits, input)
	}
	if async {
		return tools.NewAsyncFunc(bashToolName, description, run)
	}
	return tools.NewFunc(bashToolName, description, run)
}

// runShell returns a non-nil error for timeouts and non-zero exits; the error
// text carries the command output so the model sees it in the error result.
func runShell(ctx context.Context, root string, limits outputLimits, input bashInput) (tools.Result, error) {
	if err := ctx.Err(); err != nil {
		return tools.Result{}, err
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return tools.Result{}, errors.New("command is required")
	}
	if input.Timeout < 0 {
		return tools.Result{}, errors.New("timeout must be >= 0")
	}

	runCtx := ctx
	cancel := func() {}
	if input.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(input.Timeout)*time.Second)
	}
	defer cancel()

	cmd := shellCommand(runCtx, command)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	output := combineStdoutStderr(stdout.String(), stderr.String())

	cut := truncateTail(output, limits.lines, limits.bytes)
	text := cut.Content
	if text == "" {
		text = "(no output)"
	}
	if cut.Truncated {
		text += fmt.Sprintf("\n\n[Showing last %d of %d lines.]", cut.OutputLines, cut.TotalLines)
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return tools.Result{}, fmt.Errorf("%s\n\nCommand timed out after %d seconds", text, input.Timeout)
	}
	if runErr != nil {
		if err := ctx.Err(); err != nil {
			return tools.Result{}, err
		}
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return tools.Result{}, fmt.Errorf("%s\n\nCommand exited with code %d", text, exitCode)
	}
	return tools.Result{Content: text}, nil
}

func combineStdoutStderr(stdout, stderr string) string {
	if stdout == "" {
		return stderr
	}
	if stderr == "" {
		return stdout
	}
	return stdout + "\n" + stderr
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/c", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}
