package main

import (
	"bytes"
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/urlgrab/models"
	"github.com/use-agent/urlgrab/runner"
)

// extractor is the part of runner.Service the tool needs.
type extractor interface {
	Extract(ctx context.Context, req models.ExtractionRequest) models.Result
}

func extractURLTool() mcp.Tool {
	return mcp.NewTool("extract_url",
		mcp.WithDescription("Load one web page in a real browser and return its content as a single JSON object. "+
			"'direct' returns {url, status, title, html}; 'agent' returns {title, text} read by an LLM agent that treats the page as untrusted data."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to extract"),
		),
		mcp.WithString("strategy",
			mcp.Description("Extraction strategy: 'direct' (rendered markup) or 'agent' (title and visible text). Defaults to the server's configured strategy."),
			mcp.Enum(string(models.StrategyDirect), string(models.StrategyAgent)),
		),
	)
}

// handleExtractURL returns the result envelope as text. Failures are tool
// errors carrying the same {"error": ...} envelope.
func handleExtractURL(svc extractor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		var res models.Result
		if err != nil {
			res = models.Failure{Code: models.ErrCodeInvalidInput, Message: "No URL provided"}
		} else {
			res = svc.Extract(ctx, models.ExtractionRequest{
				URL:      url,
				Strategy: models.Strategy(request.GetString("strategy", "")),
			})
		}

		var buf bytes.Buffer
		if err := runner.Emit(&buf, res); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text := strings.TrimSuffix(buf.String(), "\n")

		if !res.OK() {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
