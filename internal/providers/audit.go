package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"labflow/internal/models"
)

// AuditSink stores one row per provider call.
type AuditSink interface {
	Insert(ctx context.Context, call models.LLMCall) error
}

type auditedCompleter struct {
	next   Completer
	sink   AuditSink
	logger *slog.Logger
}

// Audited records every call made through next. Sink errors are logged only.
func Audited(next Completer, sink AuditSink, logger *slog.Logger) Completer {
	if sink == nil {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &auditedCompleter{next: next, sink: sink, logger: logger}
}

func (a *auditedCompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, ProviderInfo, error) {
	started := time.Now()
	resp, info, err := a.next.Complete(ctx, req)

	call := models.LLMCall{
		CallID:     uuid.NewString(),
		Operation:  req.Operation,
		FileID:     req.FileID,
		SessionID:  req.SessionID,
		Provider:   info.Name,
		Model:      info.Model,
		Status:     "ok",
		DurationMs: time.Since(started).Milliseconds(),
		CreatedAt:  started.UTC(),
	}
	if err != nil {
		call.Status = "error"
		call.ErrorType = string(ClassifyError(err))
		call.Error = err.Error()
	}
	if serr := a.sink.Insert(context.WithoutCancel(ctx), call); serr != nil {
		a.logger.Warn("llm audit insert failed", "error", serr, "operation", req.Operation, "provider", info.Name)
	}
	return resp, info, err
}
