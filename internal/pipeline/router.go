// Package pipeline runs one uploaded file through download, extraction, parsing and
// persistence, falling back across provider integrations.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labflow/internal/extraction"
	"labflow/internal/models"
	"labflow/internal/parser"
	"labflow/internal/providers"
	"labflow/internal/retry"
	"labflow/internal/util"
)

var defaultOrder = []string{providers.OpenAI, providers.Anthropic}

// Order lists the credentialed providers to try. A known, credentialed preference
// goes first; everything else follows the default order.
func Order(preferred string, avail providers.Availability) []string {
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	out := make([]string, 0, len(defaultOrder))
	if preferred != providers.Auto && avail.Has(preferred) {
		out = append(out, preferred)
	}
	for _, name := range defaultOrder {
		if name != preferred && avail.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// IntegrationSource hands out the per-vendor completers and model ladders.
type IntegrationSource interface {
	Availability() providers.Availability
	Integration(name string) (providers.Integration, bool)
}

// Stage is reported as the router moves through a file.
type Stage struct {
	Status   models.FileStatus
	Provider string
	Model    string
	Attempt  int
}

type Outcome struct {
	Provider        string
	Model           string
	Document        models.ExtractedDocument
	ExtractAttempts int
	Parsed          parser.Result
	ParseAttempts   int
	// Accepted is false when every parse attempt failed validation and the last
	// result is kept anyway.
	Accepted bool
}

type RouterOptions struct {
	Extraction    extraction.Options
	MaxParseChars int
	Logger        *slog.Logger
}

type Router struct {
	source IntegrationSource
	opts   RouterOptions
	logger *slog.Logger
}

func NewRouter(source IntegrationSource, opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Extraction.Logger == nil {
		opts.Extraction.Logger = logger
	}
	return &Router{source: source, opts: opts, logger: logger}
}

func (r *Router) Availability() providers.Availability {
	return r.source.Availability()
}

// Run walks the providers in Order. Each one gets its own extraction ladder followed
// by its own parse ladder; the first provider to produce a report wins. Errors that
// another provider cannot fix end the walk early.
func (r *Router) Run(ctx context.Context, job models.FileJob, data []byte, preferred string, stage func(Stage)) (Outcome, error) {
	if stage == nil {
		stage = func(Stage) {}
	}
	order := Order(preferred, r.source.Availability())
	if len(order) == 0 {
		return Outcome{}, fmt.Errorf("%w: no provider credentials configured", util.ErrProviderUnavailable)
	}

	var lastErr error
	for _, name := range order {
		in, ok := r.source.Integration(name)
		if !ok {
			continue
		}
		out, err := r.runIntegration(ctx, in, job, data, stage)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !util.IsRetryable(err) || ctx.Err() != nil {
			return Outcome{}, err
		}
		r.logger.Warn("provider failed, trying next", "provider", name, "file_id", job.FileID, "error", err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no provider integration available", util.ErrProviderUnavailable)
	}
	return Outcome{}, lastErr
}

func (r *Router) runIntegration(ctx context.Context, in providers.Integration, job models.FileJob, data []byte, stage func(Stage)) (Outcome, error) {
	extractor := extraction.New(in.Name, in.Extract, r.opts.Extraction)
	ext, err := retry.Escalate(ctx, in.ExtractModels, func(ctx context.Context, model string, n int) (models.ExtractedDocument, error) {
		stage(Stage{Status: models.StatusExtracting, Provider: in.Name, Model: model, Attempt: n})
		return extractor.Extract(ctx, extraction.Request{
			Data:      data,
			MIMEType:  job.FileType,
			FileName:  job.FileName,
			Model:     model,
			FileID:    job.FileID,
			SessionID: job.SessionID,
		})
	}, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s extraction: %w", in.Name, err)
	}

	p := parser.New(in.Name, in.Parse, r.opts.MaxParseChars, r.logger)
	parsed, err := retry.Escalate(ctx, in.ParseModels, func(ctx context.Context, model string, n int) (parser.Result, error) {
		stage(Stage{Status: models.StatusParsing, Provider: in.Name, Model: model, Attempt: n})
		return p.Parse(ctx, parser.Request{
			Text:      ext.Value.Text,
			FileName:  job.FileName,
			Attempt:   n,
			Model:     model,
			FileID:    job.FileID,
			SessionID: job.SessionID,
		})
	}, func(res parser.Result) bool { return res.Validation.IsValid })
	if err != nil {
		return Outcome{}, fmt.Errorf("%s parsing: %w", in.Name, err)
	}
	if !parsed.Accepted {
		r.logger.Warn("keeping report that failed validation on every attempt",
			"provider", in.Name, "file_id", job.FileID, "attempts", parsed.Attempts, "issues", parsed.Value.Validation.Issues)
	}

	return Outcome{
		Provider:        in.Name,
		Model:           parsed.Value.Model,
		Document:        ext.Value,
		ExtractAttempts: ext.Attempts,
		Parsed:          parsed.Value,
		ParseAttempts:   parsed.Attempts,
		Accepted:        parsed.Accepted,
	}, nil
}
