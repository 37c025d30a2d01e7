package main

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/config"
	"github.com/martin3r-me/platforms-brands-sub000/internal/logging"
	"github.com/martin3r-me/platforms-brands-sub000/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline as MCP tools over stdio",
	Long: `Serve generate_contracts, publish_content_item, get_status_projection,
list_contracts and update_contract over the MCP stdio transport.

Calls run as the principal of the token in BRANDS_MCP_TOKEN.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	// stdout carries the protocol.
	logger, err := logging.NewStderr(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.MCPToken == "" {
		return errors.New("BRANDS_MCP_TOKEN required for the mcp command")
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:        cfg.AuthSecret,
		PublicKeyFile: cfg.AuthPublicKeyFile,
		Issuer:        cfg.AuthIssuer,
		DebugToken:    cfg.DebugToken,
	})
	if err != nil {
		return err
	}
	principal, err := verifier.Verify(cfg.MCPToken)
	if err != nil {
		return fmt.Errorf("BRANDS_MCP_TOKEN: %w", err)
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("mcp server starting", zap.String("principal", principal.Subject))
	return server.ServeStdio(mcptools.NewServer(mcptools.New(a.svc, principal, logger)))
}
