// Package llm is the agent's language-model backend: a small chat-with-tools
// abstraction over the OpenAI and Anthropic SDKs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

// Role is the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn. Tool turns carry the ID of the call they
// answer; assistant turns may carry tool calls.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool describes a function the model may call. Parameters is a JSON Schema
// object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model request to run a tool. Arguments is a JSON object.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Usage is the token accounting for one request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}

// Response is the model's reply. A response without ToolCalls is final.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Provider is a chat model with tool calling.
type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, messages []Message, tools []Tool) (*Response, error)
}

// New returns the provider named by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, models.NewScrapeError(models.ErrCodeLLMAuthFailure,
			fmt.Sprintf("no API key configured for LLM provider %q", cfg.Provider), nil)
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// classifyStatus maps HTTP status codes to error codes.
func classifyStatus(statusCode int, msg string, err error) *models.ScrapeError {
	if msg == "" {
		msg = "LLM API error"
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewScrapeError(models.ErrCodeLLMAuthFailure, msg, err)
	case statusCode == http.StatusTooManyRequests:
		return models.NewScrapeError(models.ErrCodeLLMRateLimited, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeLLMFailure, fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), err)
	}
}

// classifyTransport handles errors that carry no HTTP status.
func classifyTransport(err error) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, "LLM request timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
}
