package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/hubbub"
	"github.com/jpalmerr/hubbub/config"
)

// defaultEnvFiles are loaded when present and --env-file is not given.
// Later files do not override earlier ones or the process environment.
var defaultEnvFiles = []string{".env.local", ".env"}

// serveCmd polls the feed and publishes events until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the feed and publish events",
	Long: `Poll the configured feed and publish its events.

The server will:
  - Load configuration from the YAML file, if given
  - Poll the feed, pacing each batch over the advertised interval
  - Print events to stdout when console output is enabled
  - Serve the SSE stream, stats and metrics on the configured port

Environment variables are read from --env-file, or from .env.local and
.env in the working directory when present, before the config is expanded.

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  hubbub serve --console --port 0
  hubbub serve -c hubbub.yaml
  hubbub serve -c hubbub.yaml --feed-url https://api.github.com/orgs/golang/events`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to config file")
	cmd.Flags().String("feed-url", "", "override the feed URL")
	cmd.Flags().Int("port", config.DefaultPort, "override the HTTP port (0 disables HTTP)")
	cmd.Flags().Bool("console", false, "print events to stdout")
	cmd.Flags().String("env-file", "", "load environment variables from this file")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadEnv(cmd); err != nil {
		return err
	}

	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	opts = append(opts, hubbub.WithLogger(logger))

	p, err := hubbub.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer p.Close()

	if cfg.Console {
		kinds, err := config.ConsoleKinds(cfg)
		if err != nil {
			return err
		}
		sub := hubbub.FilterKinds(hubbub.NewConsoleSubscriber(cmd.OutOrStdout()), kinds...)
		if _, err := p.Subscribe(sub); err != nil {
			return fmt.Errorf("failed to attach console: %w", err)
		}
	}

	logger.Info("config loaded",
		"feed_url", cfg.FeedURL,
		"port", cfg.ListenPort(),
		"console", cfg.Console,
		"default_poll_interval", cfg.DefaultPollInterval.Duration().String(),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the first failure cancels the rest
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(ctx)
	})
	if port := cfg.ListenPort(); port != 0 {
		g.Go(func() error {
			return p.Serve(ctx, port)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loadEnv loads .env files into the process environment.
func loadEnv(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}

	for _, f := range defaultEnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// loadServeConfig reads the config file, if any, and applies flag overrides.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("feed-url") {
		cfg.FeedURL, _ = flags.GetString("feed-url")
	}
	if flags.Changed("port") {
		port, _ := flags.GetInt("port")
		cfg.SetPort(port)
	}
	if flags.Changed("console") {
		cfg.Console, _ = flags.GetBool("console")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
