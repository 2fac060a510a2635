// Package testutils provides in-memory fakes for the port interfaces used
// across the test suites: a scriptable LLM client, a map-backed paper store,
// and a map-backed identifier mapper.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/huihuang/mdaqa/internal/domain"
)

// Response is one scripted LLM reply. When Err is non-nil the call fails
// with it instead of returning Text.
type Response struct {
	Text string
	Err  error
}

// MockLLM is a scriptable ports.LLMClient. Rules match on prompt substrings;
// a queue, when set, takes precedence and is consumed one response per call.
// It is safe for concurrent use.
type MockLLM struct {
	mu      sync.Mutex
	rules   []rule
	queue   []Response
	calls   []string
	failErr error
}

type rule struct {
	substring string
	response  Response
}

// NewMockLLM returns an empty mock; configure it with Enqueue or Respond.
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Respond registers a substring rule: any prompt containing substring gets
// this response. Rules are checked in registration order.
func (m *MockLLM) Respond(substring, text string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule{substring: substring, response: Response{Text: text}})
	return m
}

// Enqueue appends responses consumed in order by subsequent calls,
// regardless of prompt content.
func (m *MockLLM) Enqueue(responses ...Response) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
	return m
}

// FailWith makes every call fail with err once the queue is drained and no
// rule matches.
func (m *MockLLM) FailWith(err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	return m
}

// Calls returns a copy of every prompt received so far.
func (m *MockLLM) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Complete implements ports.LLMClient.
func (m *MockLLM) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		if next.Err != nil {
			return "", next.Err
		}
		return next.Text, nil
	}
	for _, r := range m.rules {
		if strings.Contains(prompt, r.substring) {
			if r.response.Err != nil {
				return "", r.response.Err
			}
			return r.response.Text, nil
		}
	}
	if m.failErr != nil {
		return "", m.failErr
	}
	return "", fmt.Errorf("mock LLM has no response for prompt of %d chars", len(prompt))
}

// EstimateTokens implements ports.LLMClient with a four-characters-per-token
// heuristic.
func (m *MockLLM) EstimateTokens(text string) (int, error) {
	return len(text) / 4, nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLM) GetModel() string { return "mock-model" }

// MemoryStore is a map-backed ports.PaperStore keyed by arXiv identifier.
type MemoryStore struct {
	Papers map[string]string
}

// NewMemoryStore builds a store from arXiv id to content text.
func NewMemoryStore(papers map[string]string) *MemoryStore {
	return &MemoryStore{Papers: papers}
}

// Lookup implements ports.PaperStore.
func (s *MemoryStore) Lookup(_ context.Context, arxivID string) (string, error) {
	text, ok := s.Papers[arxivID]
	if !ok {
		return "", fmt.Errorf("paper %s: %w", arxivID, domain.ErrPaperNotFound)
	}
	return text, nil
}

// MemoryMapper is a map-backed ports.IdentifierMapper.
type MemoryMapper struct {
	Entries map[domain.PaperID]domain.PaperMeta
}

// NewMemoryMapper builds a mapper from internal id to public identity.
func NewMemoryMapper(entries map[domain.PaperID]domain.PaperMeta) *MemoryMapper {
	return &MemoryMapper{Entries: entries}
}

// Lookup implements ports.IdentifierMapper.
func (m *MemoryMapper) Lookup(id domain.PaperID) (domain.PaperMeta, bool) {
	meta, ok := m.Entries[id]
	return meta, ok
}
