package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"labflow/internal/util"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider talks to the Messages REST API directly.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey, baseURL string, timeout time.Duration) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: Anthropic, Model: req.Model}
	if a.apiKey == "" {
		return CompletionResponse{}, info, fmt.Errorf("%w: anthropic key missing", util.ErrProviderUnavailable)
	}
	if info.Model == "" {
		info.Model = "claude-3-5-haiku-latest"
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	blocks := make([]map[string]any, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		kind := "document"
		if att.IsImage() {
			kind = "image"
		}
		blocks = append(blocks, map[string]any{
			"type": kind,
			"source": map[string]any{
				"type":       "base64",
				"media_type": att.MIMEType,
				"data":       base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	prompt := req.Prompt
	if req.JSON {
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}
	blocks = append(blocks, map[string]any{"type": "text", "text": prompt})

	body := map[string]any{
		"model":       info.Model,
		"max_tokens":  maxTokens,
		"temperature": 0,
		"messages":    []map[string]any{{"role": "user", "content": blocks}},
	}
	if req.System != "" {
		body["system"] = req.System
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("encode anthropic request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("%w: anthropic request failed: %v", util.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return CompletionResponse{}, info, &HTTPError{Provider: Anthropic, Status: resp.StatusCode, Body: string(raw)}
	}
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CompletionResponse{}, info, fmt.Errorf("%w: decode anthropic response: %v", util.ErrMalformedResponse, err)
	}
	var sb strings.Builder
	for _, c := range parsed.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return CompletionResponse{}, info, fmt.Errorf("%w: anthropic returned no text content", util.ErrProviderUnavailable)
	}
	return CompletionResponse{Text: sb.String()}, info, nil
}
