// Command grouplift-mcp serves the GroupLift MCP tools over stdio, backed
// by a remote GroupLift server's REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/claude/grouplift/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	baseURL := flag.String("url", os.Getenv("GROUPLIFT_URL"), "GroupLift server base URL (required)")
	devUser := flag.String("dev-user", "", "login sent as X-Dev-User to servers without Tailscale")
	flag.Parse()

	// stdout carries the MCP protocol, so logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *baseURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: grouplift-mcp -url http://grouplift.tailnet-name.ts.net [-dev-user login]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	client := mcp.NewHTTPClient(*baseURL, *devUser)
	s := mcp.New(client, client, Version, log)

	log.Info("mcp stdio server starting", "url", *baseURL)
	// The remote server identifies the caller itself; the local user id
	// only satisfies the tools' authentication check.
	err := server.ServeStdio(s, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return mcp.WithUserID(ctx, 0)
	}))
	if err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
