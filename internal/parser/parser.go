// Package parser turns extracted lab report text into a validated ParsedMedicalReport.
package parser

import (
	"context"
	"fmt"
	"log/slog"

	"labflow/internal/models"
	"labflow/internal/providers"
	"labflow/internal/util"
)

const DefaultMaxInputChars = 12000

type Result struct {
	Data       models.ParsedMedicalReport `json:"data"`
	Validation models.ValidationResult    `json:"validation"`
	Provider   string                     `json:"provider"`
	Model      string                     `json:"model"`
	Truncated  bool                       `json:"truncated"`
}

type Request struct {
	Text      string
	FileName  string
	Attempt   int
	Model     string
	FileID    string
	SessionID string
}

type Parser struct {
	provider      string
	completer     providers.Completer
	maxInputChars int
	logger        *slog.Logger
}

func New(provider string, completer providers.Completer, maxInputChars int, logger *slog.Logger) *Parser {
	if maxInputChars <= 0 {
		maxInputChars = DefaultMaxInputChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{provider: provider, completer: completer, maxInputChars: maxInputChars, logger: logger.With("provider", provider)}
}

// Parse makes one provider call. Validation problems are returned in Result, not as an error.
func (p *Parser) Parse(ctx context.Context, req Request) (Result, error) {
	text, truncated := util.TruncateRunes(req.Text, p.maxInputChars)
	if truncated {
		p.logger.Warn("report text truncated before parsing", "file_id", req.FileID, "limit", p.maxInputChars)
	}

	resp, info, err := p.completer.Complete(ctx, providers.CompletionRequest{
		Operation: "parse",
		Model:     req.Model,
		System:    parseSystemPrompt,
		Prompt:    buildPrompt(req.FileName, req.Attempt, text),
		JSON:      true,
		MaxTokens: 4096,
		FileID:    req.FileID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", req.FileName, err)
	}
	report, err := DecodeReport(resp.Text)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", req.FileName, err)
	}

	model := info.Model
	if model == "" {
		model = req.Model
	}
	v := Validate(report)
	if !v.IsValid {
		p.logger.Info("parsed report failed validation", "file_id", req.FileID, "attempt", req.Attempt, "model", model, "issues", v.Issues)
	}
	return Result{Data: report, Validation: v, Provider: p.provider, Model: model, Truncated: truncated}, nil
}
