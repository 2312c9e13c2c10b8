// Package main is the entry point for the contentapi binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arazvan-ec/contentapi/internal/governance"
	"github.com/arazvan-ec/contentapi/pkg/config"
	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine"
	"github.com/arazvan-ec/contentapi/pkg/logging"
	"github.com/arazvan-ec/contentapi/pkg/server"
	"github.com/arazvan-ec/contentapi/pkg/storage"
	"github.com/arazvan-ec/contentapi/pkg/telemetry"
	"github.com/arazvan-ec/contentapi/pkg/upstream"
)

const defaultEnvFile = ".env"

// CLIConfig holds the parsed persistent flags.
type CLIConfig struct {
	Config   string
	EnvFile  string
	Backend  string
	Fixtures string
	LogLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cli := &CLIConfig{}
	rootCmd := &cobra.Command{
		Use:   "contentapi",
		Short: "Composes editorial content from its backend services",
		Long: `contentapi resolves a content identifier into a single document by fetching
the editorial and fanning out to the services that own its related content.

Example:
  contentapi serve --config contentapi.yaml
  contentapi resolve 100 --backend memory --fixtures fixtures.yaml`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cli.Config, "config", "c", "", "Path to configuration file (YAML)")
	flags.StringVar(&cli.EnvFile, "env-file", defaultEnvFile, "Dotenv file loaded before the configuration")
	flags.StringVar(&cli.Backend, "backend", "", "Content backend (http, memory)")
	flags.StringVar(&cli.Fixtures, "fixtures", "", "Fixtures file for the memory backend")
	flags.StringVarP(&cli.LogLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(cli), newResolveCmd(cli))
	return rootCmd
}

func newServeCmd(cli *CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the content API and the admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cli, cmd.ErrOrStderr())
		},
	}
}

func newResolveCmd(cli *CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <content-id>",
		Short: "Run the pipeline once and print the composed response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), cli, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// loadConfig reads the dotenv file, applies flag overrides as CONTENTAPI_*
// variables and loads the configuration through the usual validation path.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || cli.EnvFile != defaultEnvFile {
				return nil, fmt.Errorf("failed to load env file %s: %w", cli.EnvFile, err)
			}
		}
	}

	overrides := map[string]string{
		"CONTENTAPI_BACKEND":   cli.Backend,
		"CONTENTAPI_FIXTURES":  cli.Fixtures,
		"CONTENTAPI_LOG_LEVEL": cli.LogLevel,
	}
	for key, val := range overrides {
		if val == "" {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", key, err)
		}
	}

	return config.Load(cli.Config)
}

// app is the assembled process.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	orchestrator *engine.Orchestrator
}

func buildApp(ctx context.Context, cli *CLIConfig, logOutput io.Writer) (*app, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	source, err := newContentSource(cfg, logger.Logger)
	if err != nil {
		return nil, err
	}

	orchestrator, err := engine.NewOrchestrator(ctx, engine.OrchestratorConfig{
		Source: source,
		Logger: logger.Logger,
		Timeouts: governance.TimeoutConfig{
			RequestTimeout: cfg.Pipeline.RequestTimeout,
			BatchTimeout:   cfg.Pipeline.BatchTimeout,
		},
		MaxConcurrency:     cfg.Pipeline.MaxConcurrency,
		DisabledSteps:      cfg.Pipeline.DisabledSteps,
		DisabledEnrichers:  cfg.Pipeline.DisabledEnrichers,
		MembershipSections: cfg.Pipeline.MembershipSections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	return &app{cfg: cfg, logger: logger, orchestrator: orchestrator}, nil
}

func newContentSource(cfg *config.Config, logger *slog.Logger) (domain.ContentSource, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		store, err := storage.LoadFixtures(cfg.Fixtures.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using in-memory backend", "fixtures", cfg.Fixtures.Path)
		return store, nil
	case config.BackendHTTP:
		u := cfg.Upstreams
		return upstream.NewClient(upstream.Config{
			Endpoints: upstream.Endpoints{
				Editorial:  u.Editorial,
				Embedded:   u.Embedded,
				Comments:   u.Comments,
				Signatures: u.Signatures,
				Tags:       u.Tags,
				Membership: u.Membership,
				Photos:     u.Photos,
				Videos:     u.Videos,
				Widgets:    u.Widgets,
			},
			Timeout: u.Timeout,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", domain.ErrConfigInvalid, cfg.Backend)
	}
}

func runServe(ctx context.Context, cli *CLIConfig, logOutput io.Writer) error {
	a, err := buildApp(ctx, cli, logOutput)
	if err != nil {
		return err
	}
	logger := a.logger
	slog.SetDefault(logger.Logger)

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		Endpoint:    a.cfg.Telemetry.OTLPEndpoint,
		Environment: a.cfg.Telemetry.Environment,
		Insecure:    a.cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	srv := server.New(server.Config{
		DataAddress:     a.cfg.Server.DataAddress,
		AdminAddress:    a.cfg.Server.AdminAddress,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		Handler: engine.NewContentHandler(engine.ContentHandlerConfig{
			Resolver: a.orchestrator,
			Logger:   logger.Logger,
		}).Routes(),
		Logger: logger.Logger,
	})

	if cli.Config != "" {
		watcher, err := config.NewWatcher(cli.Config, func(next *config.Config) {
			if err := logger.SetLevel(next.Logging.Level); err != nil {
				srv.Metrics().RecordConfigReload("failure")
				logger.Warn("ignoring reloaded log level", "error", err)
				return
			}
			srv.Metrics().RecordConfigReload("success")
		}, logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	logger.Info("starting contentapi",
		"backend", a.cfg.Backend,
		"data_addr", a.cfg.Server.DataAddress,
		"admin_addr", a.cfg.Server.AdminAddress,
	)
	return srv.Run(ctx)
}

// resolveOutput is what the resolve command prints.
type resolveOutput struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers,omitempty"`
	Kind    string              `json:"kind"`
	Body    any                 `json:"body,omitempty"`
}

func runResolve(ctx context.Context, cli *CLIConfig, contentID string, out, logOutput io.Writer) error {
	a, err := buildApp(ctx, cli, logOutput)
	if err != nil {
		return err
	}

	response, err := a.orchestrator.Resolve(ctx, contentID)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", contentID, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resolveOutput{
		Status:  response.Status,
		Headers: response.Headers,
		Kind:    response.Kind,
		Body:    response.Body,
	})
}
