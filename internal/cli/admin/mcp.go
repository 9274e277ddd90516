package admin

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/api/middleware"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/mcpserver"
)

// MCPCmd returns the mcp command
func MCPCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search and grounded answers as MCP tools",
		Long: `Runs a Model Context Protocol server exposing the search_passages, ask and
list_documents tools plus a document-chunks resource.

By default it speaks stdio, for agents that launch meddocsd as a subprocess.
With --http it serves the streamable HTTP transport behind the API token.`,
		Example: "  meddocsd mcp\n  meddocsd mcp --http :8090",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("http")
			if addr == "" {
				// stdout carries the protocol.
				logger.InitWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			}
			defer initTelemetry(cfg)()

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := mcpserver.NewServer(version, app.Retriever, app.Chat, app.Documents, mcpserver.Defaults{
				K:             cfg.QATopK,
				MinSimilarity: cfg.QAMinSimilarity,
			})
			if addr == "" {
				return srv.Run(ctx)
			}
			return srv.RunHTTP(ctx, addr, middleware.TokenAuth(cfg.APIToken))
		},
	}

	cmd.Flags().String("http", "", "Serve over streamable HTTP on this address instead of stdio")

	return cmd
}
