// Package commands implements the descinject CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
	"github.com/Sumatoshi-tech/descinject/pkg/resolve"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
	"github.com/Sumatoshi-tech/descinject/pkg/version"
)

// Persistent flag names, bound onto the matching config keys.
const (
	flagConfig    = "config"
	flagRoot      = "root"
	flagDebug     = "debug"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

var flagKeys = map[string]string{
	flagDebug:     "plugin.debug",
	flagLogLevel:  "logging.level",
	flagLogFormat: "logging.format",
}

// NewRootCommand builds the descinject command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "descinject",
		Short: "Detect dialog descriptions in JSX and inject the result into compiled components",
		Long: `descinject analyses JSX/TSX sources for a container component (Dialog.Root by
default) that renders a description marker (Dialog.Description), directly or
through an imported wrapper, and injects the verdict as a boolean prop into
the container's lowered factory calls.

Commands:
  scan      Analyse files and report a verdict per file
  rewrite   Lower one file and inject its verdict
  build     Bundle entry points with esbuild and the descinject plugin
  mcp       Serve the analysis as MCP tools on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagConfig, "", "config file (default: descinject.yaml in . or ./config)")
	flags.String(flagRoot, ".", "project root used to resolve relative and aliased imports")
	flags.Bool(flagDebug, false, "enable debug logging and always-on tracing")
	flags.String(flagLogLevel, config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String(flagLogFormat, config.DefaultLogFormat, "log format (text, json)")

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newRewriteCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newMCPCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := version.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "descinject %s (commit: %s, built: %s, %s)\n",
				info.Version, info.Commit, info.Date, info.Go)
		},
	}
}

// loadConfig merges defaults, the config file, DESCINJECT_* variables and
// the persistent flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	viperCfg := config.New()

	for flag, key := range flagKeys {
		bindErr := viperCfg.BindPFlag(key, cmd.Flags().Lookup(flag))
		if bindErr != nil {
			return nil, fmt.Errorf("bind --%s: %w", flag, bindErr)
		}
	}

	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flagConfig, err)
	}

	return config.Load(viperCfg, path)
}

// session is the state shared by the commands for one invocation.
type session struct {
	cfg       *config.Config
	root      string
	providers observability.Providers
	metrics   *observability.PluginMetrics
	resolver  *resolve.FS
	store     *verdict.MemoryStore
}

func newSession(cmd *cobra.Command, mode observability.AppMode) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	rootFlag, err := cmd.Flags().GetString(flagRoot)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flagRoot, err)
	}

	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", rootFlag, err)
	}

	obsCfg := cfg.Observability(mode, version.Get().Version)
	if mode == observability.ModeMCP {
		// Stdout carries the protocol.
		obsCfg.LogOutput = observability.OutputStderr
	}

	providers, err := observability.Init(cmd.Context(), obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewPluginMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(cmd.Context()))
	}

	return &session{
		cfg:       cfg,
		root:      root,
		providers: providers,
		metrics:   metrics,
		resolver: resolve.New(root,
			resolve.WithAliases(cfg.Resolve.Aliases),
			resolve.WithExtensions(cfg.Resolve.Extensions)),
		store: verdict.NewMemoryStore(),
	}, nil
}

// deps returns plugin dependencies resolving through the filesystem.
func (s *session) deps() plugin.Deps {
	return plugin.Deps{
		Resolver: s.resolver,
		Store:    s.store,
		Logger:   s.providers.Logger,
		Tracer:   s.providers.Tracer,
		Metrics:  s.metrics,
	}
}

func (s *session) plugin() (*plugin.Plugin, error) {
	return plugin.New(s.cfg.Plugin, s.deps())
}

func (s *session) close(ctx context.Context) {
	// The command context may already be cancelled.
	shutdownErr := s.providers.Shutdown(context.WithoutCancel(ctx))
	if shutdownErr != nil {
		s.providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}
