package providers

import (
	"fmt"
	"log/slog"
	"strings"

	"labflow/internal/config"
)

// Integration is everything one vendor needs to run the extract+parse path.
type Integration struct {
	Name          string
	Extract       Completer
	Parse         Completer
	ExtractModels []string
	ParseModels   []string
}

type Manager struct {
	integrations map[string]Integration
}

// NewManager builds an integration for every vendor that has a key configured.
func NewManager(cfg config.Config, audit AuditSink, logger *slog.Logger) (*Manager, error) {
	m := &Manager{integrations: map[string]Integration{}}

	if cfg.OpenAIKey != "" {
		in, err := buildIntegration(cfg, OpenAI, cfg.OpenAIKey, cfg.OpenAIExtractModels, cfg.OpenAIParseModels,
			NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.ProviderTimeout), audit, logger)
		if err != nil {
			return nil, err
		}
		m.integrations[OpenAI] = in
	}
	if cfg.AnthropicKey != "" {
		in, err := buildIntegration(cfg, Anthropic, cfg.AnthropicKey, cfg.AnthropicExtractModels, cfg.AnthropicParseModels,
			NewAnthropicProvider(cfg.AnthropicKey, cfg.AnthropicBaseURL, cfg.ProviderTimeout), audit, logger)
		if err != nil {
			return nil, err
		}
		m.integrations[Anthropic] = in
	}
	return m, nil
}

func buildIntegration(cfg config.Config, name, key, extractLadder, parseLadder string, direct Completer, audit AuditSink, logger *slog.Logger) (Integration, error) {
	in := Integration{
		Name:          name,
		Extract:       Audited(direct, audit, logger),
		ExtractModels: ParseModelLadder(extractLadder),
		ParseModels:   ParseModelLadder(parseLadder),
	}
	if len(in.ExtractModels) == 0 || len(in.ParseModels) == 0 {
		return Integration{}, fmt.Errorf("%s model ladder is empty", name)
	}
	switch strings.ToLower(cfg.ParseBackend) {
	case "", "http":
		in.Parse = in.Extract
	case "langchain":
		chain, err := NewChainCompleter(name, key, in.ParseModels[0])
		if err != nil {
			return Integration{}, err
		}
		in.Parse = Audited(chain, audit, logger)
	default:
		return Integration{}, fmt.Errorf("unsupported parse backend: %s", cfg.ParseBackend)
	}
	return in, nil
}

// NewStaticManager wires pre-built integrations, used by tests.
func NewStaticManager(list ...Integration) *Manager {
	m := &Manager{integrations: map[string]Integration{}}
	for _, in := range list {
		m.integrations[strings.ToLower(in.Name)] = in
	}
	return m
}

func (m *Manager) Availability() Availability {
	_, openai := m.integrations[OpenAI]
	_, anthropic := m.integrations[Anthropic]
	return Availability{OpenAI: openai, Anthropic: anthropic}
}

func (m *Manager) Integration(name string) (Integration, bool) {
	in, ok := m.integrations[strings.ToLower(strings.TrimSpace(name))]
	return in, ok
}
