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

// OpenAIProvider talks to the chat completions REST API directly.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAIProvider(apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: OpenAI, Model: req.Model}
	if o.apiKey == "" {
		return CompletionResponse{}, info, fmt.Errorf("%w: openai key missing", util.ErrProviderUnavailable)
	}
	if info.Model == "" {
		info.Model = "gpt-4o-mini"
	}

	content := []map[string]any{{"type": "text", "text": req.Prompt}}
	for _, a := range req.Attachments {
		dataURL := "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
		if a.IsImage() {
			content = append(content, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": dataURL, "detail": "high"},
			})
			continue
		}
		content = append(content, map[string]any{
			"type": "file",
			"file": map[string]any{"filename": a.FileName, "file_data": dataURL},
		})
	}
	messages := make([]map[string]any, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]any{"role": "user", "content": content})

	body := map[string]any{
		"model":       info.Model,
		"messages":    messages,
		"temperature": 0,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("encode openai request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, info, fmt.Errorf("%w: openai request failed: %v", util.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return CompletionResponse{}, info, &HTTPError{Provider: OpenAI, Status: resp.StatusCode, Body: string(raw)}
	}
	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CompletionResponse{}, info, fmt.Errorf("%w: decode openai response: %v", util.ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResponse{}, info, fmt.Errorf("%w: openai returned empty choices", util.ErrProviderUnavailable)
	}
	return CompletionResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}
