package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"aperture/internal/logging"
	mcpserver "aperture/internal/mcp"
)

var serveFlags categoryFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the classification
pipeline as tools: classify_image, start_sweep, sweep_status, score_run and
list_runs.

The server monitors for parent process death. When the MCP client disconnects
or restarts, the server self-terminates to prevent zombie processes.`,
	RunE: runServe,
}

func init() {
	registerCategoryFlags(serveCmd, &serveFlags)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := serveFlags.load()
	if err != nil {
		return err
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	srv := mcpserver.NewServer(cfg, provider, st)
	defer srv.Shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting aperture MCP server over stdio (parent watchdog active)",
		"category", cfg.Category, "model", cfg.Model)
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
