package providers

import (
	"context"
	"strings"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Attachment is raw file content sent alongside the prompt.
type Attachment struct {
	MIMEType string
	FileName string
	Data     []byte
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MIMEType), "image/")
}

type CompletionRequest struct {
	Operation   string       `json:"operation"`
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Prompt      string       `json:"prompt"`
	Attachments []Attachment `json:"-"`
	JSON        bool         `json:"json"`
	MaxTokens   int          `json:"max_tokens,omitempty"`

	// audit only
	FileID    string `json:"file_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type CompletionResponse struct {
	Text string `json:"text"`
}

// Completer is one vendor integration: prompt plus optional attachments in, text out.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, ProviderInfo, error)
}

// Availability says which vendors have credentials configured.
type Availability struct {
	OpenAI    bool
	Anthropic bool
}

func (a Availability) Has(name string) bool {
	switch name {
	case OpenAI:
		return a.OpenAI
	case Anthropic:
		return a.Anthropic
	}
	return false
}

func (a Availability) Any() bool {
	return a.OpenAI || a.Anthropic
}

const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Auto      = "auto"
)
