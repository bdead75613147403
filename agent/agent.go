// Package agent runs an LLM tool-calling loop against one browser session.
//
// The model sees a fixed, read-only toolset (navigate, read_title,
// read_text). Page data only ever reaches it inside tool results, wrapped in
// an <untrusted_page_content> envelope; the task itself is the system
// message and nothing from the page is ever merged into it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/urlgrab/llm"
	"github.com/use-agent/urlgrab/models"
)

// DefaultMaxSteps bounds provider round trips per run.
const DefaultMaxSteps = 8

const startInstruction = "Begin the task now. Use the tools, then reply with the final JSON object and nothing else."

// Runtime runs a task and returns the final answer.
type Runtime interface {
	Run(ctx context.Context, task string) (string, error)
}

// Agent is the default Runtime.
type Agent struct {
	provider llm.Provider
	tools    *Toolset
	maxSteps int
	logger   *slog.Logger
}

var _ Runtime = (*Agent)(nil)

// New creates an agent. maxSteps <= 0 means DefaultMaxSteps.
func New(provider llm.Provider, tools *Toolset, maxSteps int, logger *slog.Logger) *Agent {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{provider: provider, tools: tools, maxSteps: maxSteps, logger: logger}
}

// Run drives the loop until the model answers without tool calls. The
// answer is returned as given, even when empty. A navigation the session
// could not complete ends the run with that error.
func (a *Agent) Run(ctx context.Context, task string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: task},
		{Role: llm.RoleUser, Content: startInstruction},
	}
	defs := a.tools.Definitions()

	var usage llm.Usage
	steps := 0
	defer func() {
		a.logger.Info("agent run finished",
			"provider", a.provider.Name(),
			"model", a.provider.Model(),
			"steps", steps,
			"navigations", len(a.tools.Navigations()),
			"promptTokens", usage.PromptTokens,
			"completionTokens", usage.CompletionTokens,
			"totalTokens", usage.TotalTokens,
		)
	}()

	for steps < a.maxSteps {
		if err := ctx.Err(); err != nil {
			return "", contextError(err)
		}
		steps++

		resp, err := a.provider.Chat(ctx, messages, defs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && models.CodeOf(err) != models.ErrCodeTimeout {
				return "", contextError(ctxErr)
			}
			return "", err
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			a.logger.Debug("agent tool call", "step", steps, "tool", call.Name)
			out, err := a.tools.Execute(ctx, call)
			if err != nil {
				return "", err
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    out,
			})
		}
	}

	return "", models.NewScrapeError(models.ErrCodeAgent,
		fmt.Sprintf("agent did not finish within %d steps", a.maxSteps), nil)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeTimeout, "agent deadline exceeded", err)
	}
	return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
}
