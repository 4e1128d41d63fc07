package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"toolrunner/internal/config"
	"toolrunner/internal/llm"
	"toolrunner/internal/logging"
	"toolrunner/internal/metrics"
	"toolrunner/internal/tools"
	"toolrunner/internal/tools/builtin"
	"toolrunner/internal/transcript"
)

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "toolrunner: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

type rootFlags struct {
	configPath    string
	envFile       string
	system        string
	workspace     string
	logLevel      string
	theme         string
	transcripts   string
	resume        string
	stream        bool
	async         bool
	turns         bool
	showMetrics   bool
	maxIterations int
	maxTokens     int
	webSearch     int
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "toolrunner [prompt]",
		Short: "toolrunner runs a prompt through a model/tool loop",
		Long: "toolrunner sends a prompt to the model, executes the read, write and bash\n" +
			"tools the model asks for, and prints the final answer.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(flags.envFile); err != nil {
				return err
			}

			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(flags.configPath)})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyFlagOverrides(cmd, &cfg, flags)

			logger, err := logging.New(cmd.ErrOrStderr(), logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			provider, model, err := buildProviderFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build provider: %w", err)
			}

			registry, err := buildToolRegistry(cfg)
			if err != nil {
				return fmt.Errorf("build tool registry: %w", err)
			}

			store, err := buildTranscriptStore(cfg)
			if err != nil {
				return err
			}
			req := buildRequest(cfg, model, flags.system, strings.Join(args, " "))
			if err := resumeConversation(cmd.Context(), store, flags.resume, req); err != nil {
				return err
			}

			promRegistry := prometheus.NewRegistry()
			recorder, err := metrics.New(promRegistry)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			runErr := runPrompt(cmd.Context(), runDeps{
				Service:     provider,
				Registry:    registry,
				Transcripts: store,
				Logger:      logger,
				Metrics:     recorder,
				Out:         cmd.OutOrStdout(),
				Theme:       ResolveTheme(flags.theme),
			}, runOptions{
				Request:       req,
				MaxIterations: cfg.Orchestrator.MaxIterations,
				Stream:        cfg.Orchestrator.Stream,
				Async:         cfg.Orchestrator.Async,
				Turns:         flags.turns,
			})

			if flags.showMetrics {
				if err := writeMetrics(cmd.ErrOrStderr(), promRegistry); err != nil {
					return errors.Join(runErr, fmt.Errorf("write metrics: %w", err))
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path to config file")
	f.StringVar(&flags.envFile, "env-file", ".env", "Dotenv file loaded before config; missing files are ignored")
	f.StringVar(&flags.system, "system", "", "System prompt")
	f.StringVar(&flags.workspace, "workspace", "", "Directory the read and write tools are confined to")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&flags.theme, "theme", "dark", "Output theme (dark, light)")
	f.StringVar(&flags.transcripts, "transcripts", "", "Directory finished runs are saved to")
	f.StringVar(&flags.resume, "resume", "", "Continue the saved conversation with this run id")
	f.BoolVar(&flags.stream, "stream", false, "Use the streaming message API")
	f.BoolVar(&flags.async, "async", false, "Run tools through the async orchestrator")
	f.BoolVar(&flags.turns, "turns", false, "Print every assistant turn with its tool invocations")
	f.BoolVar(&flags.showMetrics, "metrics", false, "Print collected metrics to stderr on exit")
	f.IntVar(&flags.maxIterations, "max-iterations", 0, "Maximum model calls per run")
	f.IntVar(&flags.maxTokens, "max-tokens", 0, "Maximum output tokens per model call")
	f.IntVar(&flags.webSearch, "web-search", 0, "Enable server-side web search with this many uses")
	cmd.MarkFlagsMutuallyExclusive("async", "turns")
	return cmd
}

func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// applyFlagOverrides copies explicitly set flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, flags rootFlags) {
	changed := cmd.Flags().Changed
	if changed("workspace") {
		cfg.Orchestrator.Workspace = flags.workspace
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if changed("stream") {
		cfg.Orchestrator.Stream = flags.stream
	}
	if changed("async") {
		cfg.Orchestrator.Async = flags.async
	}
	if changed("max-iterations") {
		cfg.Orchestrator.MaxIterations = flags.maxIterations
	}
	if changed("max-tokens") {
		cfg.Orchestrator.MaxTokens = flags.maxTokens
	}
	if changed("transcripts") {
		cfg.Transcript.Dir = flags.transcripts
	}
	if changed("web-search") {
		cfg.Orchestrator.WebSearchMaxUses = flags.webSearch
	}
}

func buildProviderFromConfig(cfg config.Config) (*llm.AnthropicProvider, string, error) {
	settings, err := cfg.AnthropicSettings()
	if err != nil {
		return nil, "", fmt.Errorf("resolve anthropic settings: %w", err)
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, "", llm.ErrMissingAPIKey
	}

	pricing := make(llm.PricingTable, len(cfg.Provider.Anthropic.Pricing))
	for model, p := range cfg.Provider.Anthropic.Pricing {
		pricing[model] = llm.ModelPricing{
			InputPerMTokUSD:      p.Input,
			OutputPerMTokUSD:     p.Output,
			CacheReadPerMTokUSD:  p.CacheRead,
			CacheWritePerMTokUSD: p.CacheWrite,
		}
	}

	provider := llm.NewAnthropicProvider(llm.AnthropicConfig{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Version: settings.Version,
		Retry: llm.RetryPolicy{
			MaxRetries: settings.Retry.MaxRetries,
			BaseDelay:  settings.Retry.BaseDelay,
			MaxDelay:   settings.Retry.MaxDelay,
		},
		ModelPricing: pricing,
	})
	return provider, settings.Model, nil
}

func buildToolRegistry(cfg config.Config) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	err := builtin.Register(registry, builtin.Options{
		Workspace: cfg.Orchestrator.Workspace,
		Async:     cfg.Orchestrator.Async,
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}

func buildTranscriptStore(cfg config.Config) (*transcript.Store, error) {
	if strings.TrimSpace(cfg.Transcript.Dir) == "" {
		return nil, nil
	}
	store, err := transcript.NewStore(cfg.Transcript.Dir)
	if err != nil {
		return nil, fmt.Errorf("open transcripts: %w", err)
	}
	return store, nil
}

func buildRequest(cfg config.Config, model, system, prompt string) *llm.Request {
	req := &llm.Request{
		Model:     model,
		System:    strings.TrimSpace(system),
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		MaxTokens: cfg.Orchestrator.MaxTokens,
	}
	if cfg.Orchestrator.WebSearchMaxUses > 0 {
		req.ServerTools = []llm.ServerToolSpec{{
			Type:    llm.ServerToolWebSearch,
			MaxUses: cfg.Orchestrator.WebSearchMaxUses,
		}}
	}
	return req
}

func writeMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	return nil
}
