package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/descinject/pkg/esbuildplugin"
	"github.com/Sumatoshi-tech/descinject/pkg/mcp"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
)

func newMCPCommand() *cobra.Command {
	var importSource string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes two tools:
  - description_scan: report the verdict and candidates of a JSX/TSX file
  - description_rewrite: lower a file and inject its verdict`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := newSession(cmd, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			hooks, err := sess.plugin()
			if err != nil {
				return err
			}

			srv, err := mcp.NewServer(mcp.ServerDeps{
				Plugin:          hooks,
				Logger:          sess.providers.Logger,
				Metrics:         sess.metrics,
				Tracer:          sess.providers.Tracer,
				JSXImportSource: importSource,
			})
			if err != nil {
				return err
			}

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&importSource, "jsx-import-source", esbuildplugin.DefaultJSXImportSource,
		"module the automatic JSX runtime is imported from")

	return cmd
}
