// Package main provides the CLI entry point for ctxloomd, the
// context-management middleware proxy described in SPEC_FULL.md.
//
// ctxloomd sits between coding-agent clients and the LLMs that serve
// them, probing each model's capability profile, routing turns through
// a planning/execution pair, and rewriting prompts and tool sets with
// prosthetics learned from observed failures.
//
// # Basic Usage
//
// Start the server:
//
//	ctxloomd serve --config ctxloom.yaml
//
// Print the live config JSON Schema:
//
//	ctxloomd config schema
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for hosted GPT models
//   - GOOGLE_API_KEY: Google AI Studio key for Gemini models
//   - AZURE_OPENAI_API_KEY: Azure OpenAI deployment key
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: Bedrock credentials (or the default chain)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/agent/routing"
	"github.com/ctxloom/ctxloom/internal/capability"
	"github.com/ctxloom/ctxloom/internal/combo"
	"github.com/ctxloom/ctxloom/internal/config"
	"github.com/ctxloom/ctxloom/internal/intent"
	"github.com/ctxloom/ctxloom/internal/probe"
	"github.com/ctxloom/ctxloom/internal/prosthetic"
	"github.com/ctxloom/ctxloom/internal/server"
	"github.com/ctxloom/ctxloom/internal/workspace"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ctxloomd",
		Short:         "ctxloomd - context-management middleware proxy for agentic LLM routing",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(buildServeCmd(), buildConfigCmd(), buildProbeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ctxloomd HTTP/WebSocket server",
		Long: `Start ctxloomd's HTTP and WebSocket surface: chat-completions passthrough with
dual-model routing, workspace/team management, and the combo-evaluator
control endpoints. Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "ctxloom.yaml", "Path to YAML/JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("configuration loaded",
		"addr", cfg.Server.Addr,
		"data_root", cfg.Workspace.DataRoot,
		"enable_dual_model", cfg.Routing.EnableDualModel,
	)

	core, err := buildCore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing core: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight turns")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := core.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("ctxloomd stopped gracefully")
	return nil
}

// buildCore wires every core collaborator from config, following
// spec.md §9's "explicit values constructed at startup and passed by
// reference" translation of the source's singleton services.
func buildCore(cfg *config.Config, logger *slog.Logger) (*server.Core, error) {
	providerMap, err := buildProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring providers: %w", err)
	}
	providerClient := providers.NewClient(providerMap)

	if err := os.MkdirAll(cfg.Workspace.DataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating data root: %w", err)
	}

	capReg, err := capability.NewRegistry(cfg.Workspace.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("opening capability registry: %w", err)
	}
	comboStore, err := combo.OpenStore(cfg.Workspace.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("opening combo store: %w", err)
	}
	exclusions := combo.NewExclusionTracker(3)
	prostheticStore, err := prosthetic.Open(cfg.Workspace.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("opening prosthetic store: %w", err)
	}
	ws, err := workspace.Open(cfg.Workspace.DataRoot, shellGitStatus{})
	if err != nil {
		return nil, fmt.Errorf("opening workspace partitioner: %w", err)
	}
	probes := probe.NewHarness(providerClient)

	profileLookup := func(modelID string) []string {
		p, ok := capReg.Get(modelID)
		if !ok {
			return nil
		}
		return p.EnabledTools
	}
	prostheticLookup := func(modelID string) (string, bool) {
		f, ok := prostheticStore.Get(modelID)
		if !ok {
			return "", false
		}
		return f.Text, true
	}

	intentAdapter := &providers.IntentAdapter{Client: providerClient, Timeout: cfg.Routing.Timeout}
	autoSelect := routing.NewSelector(capReg, cfg.Routing.FailureCooldown)
	router := intent.NewRouter(intent.Config{
		MainModelID:     cfg.Routing.MainModelID,
		ExecutorModelID: cfg.Routing.ExecutorModelID,
		EnableDualModel: cfg.Routing.EnableDualModel,
		Timeout:         cfg.Routing.Timeout,
		Provider:        cfg.Routing.Provider,
	}, intentAdapter, profileLookup, prostheticLookup, autoSelect)

	return server.NewCore(cfg, logger, providerClient, router, ws, capReg, comboStore, exclusions, prostheticStore, probes, nil), nil
}

// buildProviders constructs one agent.LLMProvider per configured
// backend, keyed by the provider names the router and request bodies
// use ("anthropic", "openai", "azure", "bedrock", "google", "local").
// A backend with no usable credentials is skipped rather than failing
// startup outright — a deployment may only ever talk to one or two of
// the six flavors C1 supports.
func buildProviders(cfg *config.Config) (map[string]agent.LLMProvider, error) {
	out := map[string]agent.LLMProvider{}

	if key := firstNonEmpty(cfg.Providers.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       key,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		out["anthropic"] = p
	}

	if key := firstNonEmpty(cfg.Providers.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")); key != "" {
		out["openai"] = providers.NewOpenAIProvider(key)
	}

	if key := firstNonEmpty(cfg.Providers.Azure.APIKey, os.Getenv("AZURE_OPENAI_API_KEY")); key != "" && cfg.Providers.Azure.Endpoint != "" {
		p, err := providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{
			Endpoint:     cfg.Providers.Azure.Endpoint,
			APIKey:       key,
			DefaultModel: cfg.Providers.Azure.Deployment,
		})
		if err != nil {
			return nil, fmt.Errorf("azure provider: %w", err)
		}
		out["azure"] = p
	}

	if key := firstNonEmpty(cfg.Providers.Google.APIKey, os.Getenv("GOOGLE_API_KEY")); key != "" {
		p, err := providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       key,
			DefaultModel: cfg.Providers.Google.DefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		out["google"] = p
	}

	if hasAWSCredentials() || cfg.Providers.Bedrock.Region != "" {
		p, err := providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       cfg.Providers.Bedrock.Region,
			DefaultModel: cfg.Providers.Bedrock.DefaultModel,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock provider: %w", err)
		}
		out["bedrock"] = p
	}

	// The local inference host is always configured: spec.md §6 requires
	// a default base URL (http://localhost:1234) regardless of whether
	// anything is actually listening there yet.
	out["local"] = providers.NewOllamaProvider(providers.OllamaConfig{
		BaseURL: cfg.Providers.Local.BaseURL,
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("no provider credentials configured and no local inference host reachable")
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func hasAWSCredentials() bool {
	return os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "" || os.Getenv("AWS_ROLE_ARN") != ""
}

// shellGitStatus implements workspace.GitStatus by shelling out to
// `git status --porcelain`, per the package doc's expected wiring.
type shellGitStatus struct{}

func (shellGitStatus) IsDirty(path string) (bool, error) {
	cmd := exec.Command("git", "-C", path, "status", "--porcelain")
	out, err := cmd.Output()
	if err != nil {
		// Not a git checkout, or git unavailable: never engage safe-mode
		// for a path we can't assess.
		return false, nil //nolint:nilerr
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect ctxloomd configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd())
	return cmd
}

// buildConfigSchemaCmd prints the live JSON Schema for config.Config, the
// small piece of teacher-idiom ambient tooling SPEC_FULL.md's
// SUPPLEMENTED FEATURES section calls for.
func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the configuration document",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.JSONSchema()
			if err != nil {
				return fmt.Errorf("marshaling schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func buildProbeCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		timeout    time.Duration
		sweep      bool
	)
	cmd := &cobra.Command{
		Use:   "probe <model-id>",
		Short: "Run the capability probe battery against one model and save its profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), configPath, provider, args[0], timeout, sweep)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "ctxloom.yaml", "Path to YAML/JSON5 configuration file")
	cmd.Flags().StringVar(&provider, "provider", "local", "Backend provider to probe against")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-probe timeout")
	cmd.Flags().BoolVar(&sweep, "latency-sweep", false, "Include the context-latency sweep")
	return cmd
}

func runProbe(ctx context.Context, configPath, provider, modelID string, timeout time.Duration, sweep bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	providerMap, err := buildProviders(cfg)
	if err != nil {
		return fmt.Errorf("configuring providers: %w", err)
	}
	client := providers.NewClient(providerMap)
	harness := probe.NewHarness(client)

	result, err := harness.RunProfile(ctx, provider, modelID, probe.Options{
		Timeout:              timeout,
		IncludeLatencySweep:  sweep,
	})
	if err != nil {
		return fmt.Errorf("running probe profile: %w", err)
	}

	reg, err := capability.NewRegistry(cfg.Workspace.DataRoot)
	if err != nil {
		return fmt.Errorf("opening capability registry: %w", err)
	}
	p := capability.Profile{
		ModelID:      modelID,
		Provider:     provider,
		TestVersion:  1,
		TestedAt:     time.Now(),
		Raw:          result.Axes,
		ToolScores:   result.ToolScores,
		LatencyCurve: result.LatencyCurve,
	}
	p.Finalize()
	if err := reg.Save(p); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	slog.Info("probe run complete",
		"model", modelID,
		"provider", provider,
		"overall", p.Overall,
		"role", p.Role,
	)
	return nil
}
