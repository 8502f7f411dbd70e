package providers

import (
	"context"
	"fmt"
	"sync"
)

// MockReply is one scripted outcome. Err wins over Text.
type MockReply struct {
	Text string
	Err  error
}

// MockProvider replays scripted replies in order and records every request.
// Once the script runs out the last reply repeats.
type MockProvider struct {
	name string

	mu       sync.Mutex
	replies  []MockReply
	requests []CompletionRequest
}

func NewMockProvider(name string, replies ...MockReply) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{name: name, replies: replies}
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: m.name, Model: req.Model}
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, info, err
	}
	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	var reply MockReply
	switch {
	case len(m.replies) == 0:
		reply = MockReply{Err: fmt.Errorf("mock %s has no scripted replies", m.name)}
	case idx < len(m.replies):
		reply = m.replies[idx]
	default:
		reply = m.replies[len(m.replies)-1]
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return CompletionResponse{}, info, reply.Err
	}
	return CompletionResponse{Text: reply.Text}, info, nil
}

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
