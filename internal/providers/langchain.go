package providers

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"labflow/internal/util"
)

// ChainCompleter runs completions through a langchaingo model. It is the
// alternative parse backend selected with LABFLOW_PARSE_BACKEND=langchain.
type ChainCompleter struct {
	name string
	llm  llms.Model
}

func NewChainCompleter(name, apiKey, model string) (*ChainCompleter, error) {
	var (
		llm llms.Model
		err error
	)
	switch name {
	case OpenAI:
		llm, err = openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	case Anthropic:
		llm, err = anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", name, err)
	}
	return &ChainCompleter{name: name, llm: llm}, nil
}

// NewChainCompleterFromModel wraps an existing model, mostly for tests.
func NewChainCompleterFromModel(name string, llm llms.Model) *ChainCompleter {
	return &ChainCompleter{name: name, llm: llm}
}

func (c *ChainCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: c.name, Model: req.Model}

	parts := []llms.ContentPart{llms.TextContent{Text: req.Prompt}}
	for _, a := range req.Attachments {
		parts = append(parts, llms.BinaryPart(a.MIMEType, a.Data))
	}
	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})

	opts := []llms.CallOption{llms.WithTemperature(0)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON && c.name == OpenAI {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("%w: %s generate: %v", util.ErrProviderUnavailable, c.name, err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, info, fmt.Errorf("%w: %s returned no choices", util.ErrProviderUnavailable, c.name)
	}
	return CompletionResponse{Text: resp.Choices[0].Content}, info, nil
}
