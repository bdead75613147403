// Command urlgrab-mcp serves the extractor as an MCP tool over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/urlgrab/browser"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/logging"
	"github.com/use-agent/urlgrab/runner"
)

func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.Log)

	driver, err := browser.New(cfg.Browser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "browser driver: %v\n", err)
		os.Exit(1)
	}
	svc, err := runner.New(cfg, driver, runner.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "extraction service: %v\n", err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"urlgrab",
		runner.Version,
		server.WithToolCapabilities(false),
	)
	s.AddTool(extractURLTool(), handleExtractURL(svc))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
