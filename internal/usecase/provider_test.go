package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"relator-ai/internal/domain"
)

// stubProvider is the in-memory LLMProvider used across the package tests.
type stubProvider struct {
	name      string
	model     string
	maxOutput int
	chatFn    func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

	mu    sync.Mutex
	calls int
	last  domain.ChatRequest
}

func newStubProvider() *stubProvider {
	return &stubProvider{name: "stub", model: "stub-model", maxOutput: 8192}
}

// replying builds a stub that always answers with the given text.
func replying(text string) *stubProvider {
	p := newStubProvider()
	p.chatFn = func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{
			Message: domain.AssistantMessage(text),
			Usage:   domain.Usage{InputTokens: 10, OutputTokens: 5},
		}, nil
	}
	return p
}

func (s *stubProvider) Name() string         { return s.name }
func (s *stubProvider) Model() string        { return s.model }
func (s *stubProvider) MaxOutputTokens() int { return s.maxOutput }

func (s *stubProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	s.calls++
	s.last = req
	s.mu.Unlock()
	if s.chatFn == nil {
		return &domain.ChatResponse{Message: domain.AssistantMessage("ok")}, nil
	}
	return s.chatFn(ctx, req)
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubProvider) lastRequest() domain.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// memStore is an in-memory ChatStore with switchable failure.
type memStore struct {
	mu    sync.Mutex
	chats map[string][]domain.ChatEntry
	fail  error
}

func newMemStore() *memStore {
	return &memStore{chats: make(map[string][]domain.ChatEntry)}
}

func (m *memStore) GetChat(ctx context.Context, key string) ([]domain.ChatEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return m.chats[key], nil
}

func (m *memStore) SaveChat(ctx context.Context, key string, entries []domain.ChatEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.chats[key] = entries
	return nil
}

func (m *memStore) DeleteChat(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.chats, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testOrchestrator(provider domain.LLMProvider) *Orchestrator {
	o := NewOrchestrator(provider, NewTokenMetrics(), nil, 0, testLogger())
	o.retryPolicy.InitialDelay = time.Millisecond
	return o
}
