// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/use-agent/urlgrab/llm"
)

// ErrExhausted is returned once every scripted step was consumed.
var ErrExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted reply: either Response or Err.
type Step struct {
	Response *llm.Response
	Err      error
}

// Provider replays Steps in order and records every request.
type Provider struct {
	Steps []Step

	mu       sync.Mutex
	requests [][]llm.Message
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string  { return "scripted" }
func (p *Provider) Model() string { return "scripted-model" }

func (p *Provider) Chat(ctx context.Context, messages []llm.Message, _ []llm.Tool) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, append([]llm.Message(nil), messages...))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.Steps) == 0 {
		return nil, ErrExhausted
	}
	step := p.Steps[0]
	p.Steps = p.Steps[1:]
	return step.Response, step.Err
}

// Requests returns the conversation sent with every Chat call.
func (p *Provider) Requests() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]llm.Message(nil), p.requests...)
}

// Call builds a response requesting one tool call.
func Call(id, name, args string) Step {
	return Step{Response: &llm.Response{
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
		Usage:     llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}}
}

// Answer builds a final response.
func Answer(content string) Step {
	return Step{Response: &llm.Response{
		Content: content,
		Usage:   llm.Usage{PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25},
	}}
}
