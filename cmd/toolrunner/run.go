package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"toolrunner/internal/agent"
	"toolrunner/internal/llm"
	"toolrunner/internal/metrics"
	"toolrunner/internal/tools"
	"toolrunner/internal/transcript"
)

var (
	errTurnsWithAsync         = errors.New("--turns cannot be combined with async tools")
	errResumeNeedsTranscripts = errors.New("--resume needs a transcript directory")
)

type runDeps struct {
	Service  llm.MessageService
	Registry *tools.Registry
	// Transcripts receives successful sync and async runs. Nil disables saving.
	Transcripts *transcript.Store
	Logger      *slog.Logger
	Metrics     *metrics.Recorder
	Out         io.Writer
	Theme       Theme
}

type runOptions struct {
	Request       *llm.Request
	MaxIterations int
	Stream        bool
	Async         bool
	Turns         bool
}

// resumeConversation prepends the saved conversation runID to req.
func resumeConversation(ctx context.Context, store *transcript.Store, runID string, req *llm.Request) error {
	if strings.TrimSpace(runID) == "" {
		return nil
	}
	if store == nil {
		return errResumeNeedsTranscripts
	}
	prior, err := store.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("resume %s: %w", runID, err)
	}
	req.Messages = append(prior, req.Messages...)
	return nil
}

// runPrompt picks the orchestrator for opts and prints the run to deps.Out.
func runPrompt(ctx context.Context, deps runDeps, opts runOptions) error {
	p := &printer{out: deps.Out, theme: deps.Theme, transcripts: deps.Transcripts}
	cfg := agent.Config{
		Service:       deps.Service,
		Registry:      deps.Registry,
		MaxIterations: opts.MaxIterations,
		Logger:        deps.Logger,
		Metrics:       deps.Metrics,
	}
	if opts.Stream && !opts.Turns {
		cfg.Observer = p.observe
	}

	switch {
	case opts.Turns:
		if opts.Async {
			return errTurnsWithAsync
		}
		return runTurns(ctx, cfg, opts, p)
	case opts.Async:
		return runAsync(ctx, cfg, opts, p)
	default:
		return runSync(ctx, cfg, opts, p)
	}
}

func runSync(ctx context.Context, cfg agent.Config, opts runOptions, p *printer) error {
	var (
		result *agent.RunResult
		err    error
	)
	if opts.Stream {
		orch, buildErr := agent.NewStreaming(cfg)
		if buildErr != nil {
			return buildErr
		}
		result, err = orch.RunDetailed(ctx, opts.Request)
	} else {
		orch, buildErr := agent.New(cfg)
		if buildErr != nil {
			return buildErr
		}
		result, err = orch.RunDetailed(ctx, opts.Request)
	}
	return p.finish(ctx, result, err)
}

func runAsync(ctx context.Context, cfg agent.Config, opts runOptions, p *printer) error {
	build := agent.NewAsync
	if opts.Stream {
		build = agent.NewAsyncStreaming
	}
	orch, err := build(cfg)
	if err != nil {
		return err
	}
	task := orch.Start(ctx, opts.Request)
	<-task.Done()
	result, err := task.Result()
	return p.finish(ctx, result, err)
}

func runTurns(ctx context.Context, cfg agent.Config, opts runOptions, p *printer) error {
	orch, err := agent.NewDualMode(agent.DualModeConfig{Config: cfg, Stream: opts.Stream})
	if err != nil {
		return err
	}

	var usage llm.Usage
	turns := 0
	for msg, err := range orch.Turns(ctx, opts.Request) {
		if err != nil {
			return p.failure(err)
		}
		turns++
		usage = usage.Add(msg.Usage)
		p.turn(turns, msg, orch.Invocations(msg))
	}
	p.footer("", turns, usage)
	return nil
}

type printer struct {
	out         io.Writer
	theme       Theme
	transcripts *transcript.Store
	streamed    bool
}

// observe prints text deltas as they arrive.
func (p *printer) observe(ev llm.StreamEvent) {
	if ev.Type != llm.EventContentBlockDelta || ev.Delta.Type != llm.DeltaText {
		return
	}
	if !p.streamed {
		_, _ = fmt.Fprint(p.out, p.theme.AssistantPrefixStyle.Render("assistant")+" ")
		p.streamed = true
	}
	_, _ = fmt.Fprint(p.out, ev.Delta.Text)
}

func (p *printer) finish(ctx context.Context, result *agent.RunResult, err error) error {
	if err != nil {
		return p.failure(err)
	}
	if p.streamed {
		_, _ = fmt.Fprintln(p.out)
	} else {
		p.text(result.Message.Text())
	}
	p.footer(result.RunID, result.Iterations, result.Usage)
	if p.transcripts != nil {
		if err := p.transcripts.Save(ctx, result.RunID, result.Messages); err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
	}
	return nil
}

func (p *printer) failure(err error) error {
	if p.streamed {
		_, _ = fmt.Fprintln(p.out)
	}
	_, _ = fmt.Fprintln(p.out, p.theme.ErrorStyle.Render("run failed: "+err.Error()))
	return err
}

func (p *printer) text(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	_, _ = fmt.Fprintf(p.out, "%s %s\n", p.theme.AssistantPrefixStyle.Render("assistant"), text)
}

func (p *printer) turn(n int, msg *llm.Message, invocations []agent.ToolInvocation) {
	_, _ = fmt.Fprintln(p.out, p.theme.MutedStyle.Render(fmt.Sprintf("turn %d (%s)", n, msg.StopReason)))
	p.text(msg.Text())
	for _, inv := range invocations {
		prefix := p.theme.ToolPrefixStyle.Render("tool")
		if inv.Side == agent.SideServer {
			prefix = p.theme.ServerToolPrefixStyle.Render("server")
		}
		_, _ = fmt.Fprintf(p.out, "%s %s\n", prefix, describeInvocation(inv))
	}
}

func (p *printer) footer(runID string, iterations int, usage llm.Usage) {
	line := fmt.Sprintf("%d iterations, %d tokens (%d in, %d out)",
		iterations, usage.TotalTokens, usage.InputTokens, usage.OutputTokens)
	if runID != "" {
		line = "run " + runID + ": " + line
	}
	if usage.CostUSD > 0 {
		line += fmt.Sprintf(", $%.4f", usage.CostUSD)
	}
	_, _ = fmt.Fprintln(p.out, p.theme.MutedStyle.Render(line))
}

// describeInvocation names the tool and its most telling argument.
func describeInvocation(inv agent.ToolInvocation) string {
	var input []byte
	switch block := inv.Block.(type) {
	case llm.ToolUseBlock:
		input = block.Input
	case llm.ServerToolUseBlock:
		input = block.Input
	}
	for _, key := range []string{"command", "path", "query"} {
		if value := gjson.GetBytes(input, key); value.Exists() && value.String() != "" {
			return fmt.Sprintf("%s %s", inv.Name(), value.String())
		}
	}
	return inv.Name()
}
