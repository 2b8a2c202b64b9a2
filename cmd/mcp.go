package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	coreconfig "github.com/AzielCF/az-wap-sales/core/config"
	"github.com/AzielCF/az-wap-sales/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the sales MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server using Server-Sent Events (SSE) transport so AI agents can inspect instances and hand conversations to operators.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("host", "", "Host for the SSE MCP server")
	mcpCmd.Flags().String("mcp-port", "", "Port for the SSE MCP server")
}

func mcpServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.MCP.Host = host
	}
	if port, _ := cmd.Flags().GetString("mcp-port"); port != "" {
		cfg.MCP.Port = port
	}

	initApp()

	mcpServer := server.NewMCPServer(
		"WhatsApp Sales MCP Server",
		cfg.App.Version,
		server.WithToolCapabilities(true),
	)

	mcp.InitMcpInstance(manager).AddInstanceTools(mcpServer)
	mcp.InitMcpConversation(manager.Conversations()).AddConversationTools(mcpServer)

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("Starting MCP SSE server on %s", addr)
	logrus.Printf("SSE endpoint: http://%s/sse", addr)
	logrus.Printf("Message endpoint: http://%s/message", addr)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		StopApp()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Fatalf("Failed to start SSE server: %v", err)
	}
}
